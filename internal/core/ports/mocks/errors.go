package mocks

import (
	"fmt"

	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
)

// ErrRunNotFound is returned when a run ID doesn't exist.
var ErrRunNotFound = fmt.Errorf("run %w", apperrors.ErrNotFound)
