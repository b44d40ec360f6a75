// Package memory estimates how much RAM a whole-corpus scoring pass needs and
// compares it with what the host has available.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
)

// Unit is a 1024-based byte unit.
type Unit string

// Supported units.
const (
	Bytes     Unit = "b"
	Kilobytes Unit = "kb"
	Megabytes Unit = "mb"
	Gigabytes Unit = "gb"
)

const (
	bytesPerCell = 8
	unitBase     = 1024
	// true and predicted indicator matrices
	matrixCount = 2
)

// Divisor returns the number of bytes in one unit.
func (u Unit) Divisor() (float64, error) {
	switch Unit(strings.ToLower(string(u))) {
	case Bytes:
		return 1, nil
	case Kilobytes:
		return unitBase, nil
	case Megabytes:
		return unitBase * unitBase, nil
	case Gigabytes:
		return unitBase * unitBase * unitBase, nil
	default:
		return 0, fmt.Errorf("%w: unknown memory unit %q", apperrors.ErrInvalidInput, u)
	}
}

// EstimateRequired returns the memory needed to hold the true and predicted
// label matrices of nDocs documents over nClasses classes. Non-binary
// evaluations also keep the label-set rows themselves.
func EstimateRequired(nDocs, nClasses int, evalType domain.EvaluationType, unit Unit) (float64, error) {
	if nDocs < 0 || nClasses < 0 {
		return 0, fmt.Errorf("%w: negative size %d docs x %d classes", apperrors.ErrInvalidInput, nDocs, nClasses)
	}

	div, err := unit.Divisor()
	if err != nil {
		return 0, err
	}

	n, k := float64(nDocs), float64(nClasses)
	required := matrixCount * n * k * bytesPerCell

	if evalType != domain.EvaluationBinary {
		required += matrixCount * n * bytesPerCell
	}

	return required / div, nil
}

// HasEnough reports whether available minus buffer covers required. All
// values share one unit.
func HasEnough(required, buffer, available float64) bool {
	return available-buffer >= required
}

// Probe reports available system memory in bytes.
type Probe interface {
	AvailableBytes(ctx context.Context) (uint64, error)
}

// SystemProbe reads available memory from the operating system.
type SystemProbe struct{}

// AvailableBytes implements Probe.
func (SystemProbe) AvailableBytes(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperrors.ErrMemoryEstimation, err)
	}

	return vm.Available, nil
}

// Available returns the available memory from p expressed in unit.
func Available(ctx context.Context, p Probe, unit Unit) (float64, error) {
	div, err := unit.Divisor()
	if err != nil {
		return 0, err
	}

	avail, err := p.AvailableBytes(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrMemoryEstimation) {
			return 0, err
		}

		return 0, fmt.Errorf("%w: %w", apperrors.ErrMemoryEstimation, err)
	}

	return float64(avail) / div, nil
}

// Estimator combines the estimate, the probe and a safety buffer.
type Estimator struct {
	probe    Probe
	bufferGB float64
}

// NewEstimator returns an Estimator. A nil probe uses SystemProbe.
func NewEstimator(p Probe, bufferGB float64) *Estimator {
	if p == nil {
		p = SystemProbe{}
	}

	return &Estimator{probe: p, bufferGB: bufferGB}
}

// Decision is the outcome of a memory check.
type Decision struct {
	RequiredGB  float64
	AvailableGB float64
	BufferGB    float64
	Enough      bool
}

// Check decides whether a whole-corpus pass fits in memory.
func (e *Estimator) Check(ctx context.Context, nDocs, nClasses int, evalType domain.EvaluationType) (Decision, error) {
	required, err := EstimateRequired(nDocs, nClasses, evalType, Gigabytes)
	if err != nil {
		return Decision{}, err
	}

	available, err := Available(ctx, e.probe, Gigabytes)
	if err != nil {
		return Decision{RequiredGB: required, BufferGB: e.bufferGB}, err
	}

	return Decision{
		RequiredGB:  required,
		AvailableGB: available,
		BufferGB:    e.bufferGB,
		Enough:      HasEnough(required, e.bufferGB, available),
	}, nil
}
