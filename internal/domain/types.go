// Package domain contains the core clinical record types and derived facts used to build
// per-patient health views: lab status classification, medication enrichment, timelines and
// the anatomical systems highlighted on the body diagram.
//
// Records are immutable reference data once loaded. Every derived fact in this package is a
// pure function of those records.
package domain

import (
	"errors"
	"strings"
	"time"
)

// LabStatus represents the classification of a single lab observation against its
// reference range.
type LabStatus string

const (
	LOW     LabStatus = "LOW"
	NORMAL  LabStatus = "NORMAL"
	HIGH    LabStatus = "HIGH"
	UNKNOWN LabStatus = "UNKNOWN"
)

// StatusInfo is the status label used for non-lab timeline events.
const StatusInfo = "INFO"

// Validation errors for clinical data integrity
var (
	ErrInvalidLabStatus = errors.New("invalid lab status")
	ErrInvalidRange     = errors.New("reference range has neither a low nor a high bound")
	ErrInvertedRange    = errors.New("reference range low bound exceeds high bound")
)

// IsValid reports whether the status is one of the four known values.
func (s LabStatus) IsValid() bool {
	switch s {
	case LOW, NORMAL, HIGH, UNKNOWN:
		return true
	default:
		return false
	}
}

// IsAbnormal reports whether the observation falls outside its reference range.
func (s LabStatus) IsAbnormal() bool {
	return s == LOW || s == HIGH
}

// String returns the string representation of the status.
func (s LabStatus) String() string {
	return string(s)
}

// TestName is a canonicalized lab test name: surrounding whitespace trimmed and lowercased.
// All test-name comparisons in the system operate on this type so that casing differences
// between datasets never produce silent lookup misses.
type TestName string

// CanonicalTestName canonicalizes a free-text test name.
func CanonicalTestName(raw string) TestName {
	return TestName(strings.ToLower(strings.TrimSpace(raw)))
}

// String returns the canonical form.
func (t TestName) String() string {
	return string(t)
}

// Display returns the upper-cased form used in report and timeline text.
func (t TestName) Display() string {
	return strings.ToUpper(string(t))
}

// Patient represents a registered patient and their general information.
// Numeric attributes are nil when the registry does not provide them.
type Patient struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Age      *int     `json:"age,omitempty"`
	Gender   string   `json:"gender"`
	HeightCM *float64 `json:"height_cm,omitempty"`
	WeightKG *float64 `json:"weight_kg,omitempty"`
	BMI      *float64 `json:"bmi,omitempty"`
}

// LabObservation is a single lab result. Value is nil when the source value was missing or
// not numeric; an absent value is never treated as zero.
type LabObservation struct {
	PatientID string    `json:"patient_id"`
	Test      TestName  `json:"test_name"`
	Date      time.Time `json:"date"`
	Value     *float64  `json:"value"`
	Unit      string    `json:"unit"`
}

// HasValue reports whether the observation carries a numeric value.
func (o LabObservation) HasValue() bool {
	return o.Value != nil
}

// ReferenceRange is the acceptable numeric band for a test. Either bound may be open, but
// not both.
type ReferenceRange struct {
	Test TestName `json:"test_name"`
	Low  *float64 `json:"low"`
	High *float64 `json:"high"`
}

// Validate checks that the range is usable for classification.
func (r ReferenceRange) Validate() error {
	if r.Low == nil && r.High == nil {
		return ErrInvalidRange
	}
	if r.Low != nil && r.High != nil && *r.Low > *r.High {
		return ErrInvertedRange
	}
	return nil
}

// Medication is a prescription record for a patient.
type Medication struct {
	PatientID string    `json:"patient_id"`
	Name      string    `json:"medication_name"`
	Dose      string    `json:"dose"`
	Frequency string    `json:"frequency"`
	StartDate time.Time `json:"start_date"`
	Reason    string    `json:"reason"`
}

// MedicationKnowledge is reference information about a medication, keyed by its exact name.
type MedicationKnowledge struct {
	Name        string   `json:"medication_name"`
	Purpose     string   `json:"purpose"`
	SideEffects []string `json:"common_side_effects"`
	Monitoring  []string `json:"monitoring_required"`
}

// BodySystem maps an anatomical system to its diagram color, the label identifiers used to
// find it in the anatomy graphic, and the lab tests associated with it.
type BodySystem struct {
	Name     string     `json:"name"`
	Color    string     `json:"color"`
	LabelIDs []string   `json:"svg_ids"`
	Tests    []TestName `json:"tests"`
}

// DefaultSystemColor is used for systems whose mapping omits a color.
const DefaultSystemColor = "#ef5350"

// BodyMap is the ordered body-system mapping. Order follows the source document and
// determines the order in which systems are painted onto the diagram.
type BodyMap []BodySystem

// Names returns the system names in map order.
func (m BodyMap) Names() []string {
	names := make([]string, 0, len(m))
	for _, sys := range m {
		names = append(names, sys.Name)
	}
	return names
}

// GraphicGender selects which anatomy graphic applies to a patient gender.
type GraphicGender string

const (
	GraphicMale   GraphicGender = "male"
	GraphicFemale GraphicGender = "female"
)

// GraphicGenderFor maps a free-text patient gender to a graphic selector.
// The second return value is false when no graphic variant exists for the gender.
func GraphicGenderFor(gender string) (GraphicGender, bool) {
	switch GraphicGender(strings.ToLower(strings.TrimSpace(gender))) {
	case GraphicMale:
		return GraphicMale, true
	case GraphicFemale:
		return GraphicFemale, true
	default:
		return "", false
	}
}
