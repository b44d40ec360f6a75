package solr

import (
	"errors"
	"fmt"

	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
)

// Error definitions for Solr client operations.
var (
	// ErrBadRequest is returned when Solr rejects the request (HTTP 400).
	ErrBadRequest = errors.New("solr bad request")

	// ErrServerError is returned for Solr internal errors (HTTP 5xx).
	ErrServerError = errors.New("solr server error")

	// ErrClientDisabled is returned when operations are attempted on a disabled client.
	ErrClientDisabled = fmt.Errorf("solr: %w", apperrors.ErrClientDisabled)
)
