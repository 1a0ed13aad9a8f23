package service

import (
	"github.com/visual-health-insight/internal/domain"
)

// ReferenceRangeResolver looks up the acceptable band for a test name in any casing.
type ReferenceRangeResolver struct {
	records domain.RecordReader
}

// NewReferenceRangeResolver creates a resolver over the loaded range table.
func NewReferenceRangeResolver(records domain.RecordReader) *ReferenceRangeResolver {
	return &ReferenceRangeResolver{records: records}
}

// Resolve returns the range whose canonical key equals the canonical form of name.
func (r *ReferenceRangeResolver) Resolve(name string) (domain.ReferenceRange, bool) {
	return r.ResolveCanonical(domain.CanonicalTestName(name))
}

// ResolveCanonical is Resolve for an already canonical test name.
func (r *ReferenceRangeResolver) ResolveCanonical(test domain.TestName) (domain.ReferenceRange, bool) {
	if test == "" {
		return domain.ReferenceRange{}, false
	}
	return r.records.ReferenceRange(test)
}
