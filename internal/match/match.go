// Package match classifies face descriptors against a labeled gallery by
// nearest Euclidean neighbour.
package match

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

const (
	// Unknown is the label reported when no gallery descriptor is close enough.
	Unknown = "unknown"
	// DefaultThreshold is the largest distance still accepted as a match.
	DefaultThreshold = 0.6
)

// ErrInvalidInput is returned for an empty gallery or a descriptor whose
// dimensionality differs from the gallery's.
var ErrInvalidInput = errors.New("invalid input")

// Descriptor is a fixed-length face embedding.
type Descriptor []float32

// LabeledDescriptors groups every reference descriptor of one identity.
type LabeledDescriptors struct {
	Label       string
	Descriptors []Descriptor
}

// Gallery is the ordered reference set used for classification.
type Gallery []LabeledDescriptors

// Len returns the number of descriptors across all labels.
func (g Gallery) Len() int {
	n := 0
	for _, l := range g {
		n += len(l.Descriptors)
	}
	return n
}

// Dim returns the dimensionality of the first descriptor, or 0 when empty.
func (g Gallery) Dim() int {
	for _, l := range g {
		for _, d := range l.Descriptors {
			return len(d)
		}
	}
	return 0
}

// Result is the outcome of a single classification.
type Result struct {
	Label    string
	Distance float32
}

// Known reports whether the result names a gallery identity.
func (r Result) Known() bool { return r.Label != Unknown }

func (r Result) String() string {
	return fmt.Sprintf("%s (%.2f)", r.Label, r.Distance)
}

// Matcher is immutable after construction and safe for concurrent use.
type Matcher struct {
	gallery   Gallery
	threshold float32
	dim       int
}

// New builds a matcher over g. Every descriptor in g must share one
// dimensionality. An empty gallery is accepted here; Match reports it.
func New(g Gallery, threshold float64) (*Matcher, error) {
	dim := g.Dim()
	for _, l := range g {
		for i, d := range l.Descriptors {
			if len(d) != dim {
				return nil, fmt.Errorf("%w: descriptor %d of %q has %d values, expected %d", ErrInvalidInput, i, l.Label, len(d), dim)
			}
		}
	}
	return &Matcher{gallery: g, threshold: float32(threshold), dim: dim}, nil
}

// Threshold returns the configured distance threshold.
func (m *Matcher) Threshold() float64 { return float64(m.threshold) }

// Match returns the label owning the globally closest descriptor, or Unknown
// when that distance exceeds the threshold.
func (m *Matcher) Match(q Descriptor) (Result, error) {
	if m.dim == 0 {
		return Result{}, fmt.Errorf("%w: gallery is empty", ErrInvalidInput)
	}
	if len(q) != m.dim {
		return Result{}, fmt.Errorf("%w: descriptor has %d values, gallery uses %d", ErrInvalidInput, len(q), m.dim)
	}

	best := Result{Label: Unknown, Distance: math32.Inf(1)}
	for _, l := range m.gallery {
		for _, d := range l.Descriptors {
			if dist := Distance(q, d); dist < best.Distance {
				best = Result{Label: l.Label, Distance: dist}
			}
		}
	}

	if best.Distance > m.threshold {
		best.Label = Unknown
	}
	return best, nil
}

// Distance is the Euclidean distance between two descriptors of equal length.
func Distance(a, b Descriptor) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math32.Sqrt(sum)
}
