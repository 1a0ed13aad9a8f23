package service

import (
	"github.com/visual-health-insight/internal/domain"
)

// Classify computes the status of a value against a range. Rules apply in order: an absent
// value or range is UNKNOWN, below low is LOW, above high is HIGH, otherwise NORMAL. Both
// bounds are inclusive and an open bound never triggers.
func Classify(value *float64, rng *domain.ReferenceRange) domain.LabStatus {
	if value == nil || rng == nil {
		return domain.UNKNOWN
	}
	v := *value
	if rng.Low != nil && v < *rng.Low {
		return domain.LOW
	}
	if rng.High != nil && v > *rng.High {
		return domain.HIGH
	}
	return domain.NORMAL
}

// LabClassifier classifies observations against the resolved reference ranges.
type LabClassifier struct {
	resolver *ReferenceRangeResolver
}

// NewLabClassifier creates a classifier using resolver for range lookup.
func NewLabClassifier(resolver *ReferenceRangeResolver) *LabClassifier {
	return &LabClassifier{resolver: resolver}
}

// Classify resolves the observation's range and computes its status.
func (c *LabClassifier) Classify(obs domain.LabObservation) domain.ClassifiedLab {
	out := domain.ClassifiedLab{LabObservation: obs}
	if rng, ok := c.resolver.ResolveCanonical(obs.Test); ok {
		out.Range = &rng
	}
	out.Status = Classify(obs.Value, out.Range)
	return out
}

// Resolver returns the underlying range resolver.
func (c *LabClassifier) Resolver() *ReferenceRangeResolver {
	return c.resolver
}
