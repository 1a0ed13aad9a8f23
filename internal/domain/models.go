package domain

import (
	"sort"
	"time"
)

// Derived view models. None of these are stored; they are rebuilt from the record store.

// ClassifiedLab is a lab observation together with its computed status and the reference
// range it was classified against (nil when no range matched).
type ClassifiedLab struct {
	LabObservation
	Status LabStatus       `json:"status"`
	Range  *ReferenceRange `json:"reference_range,omitempty"`
}

// MedicationDetail is a medication record joined with its knowledge entry.
// Purpose falls back to the record's reason when no knowledge entry exists.
type MedicationDetail struct {
	Name         string    `json:"medication_name"`
	Dosage       string    `json:"dosage"`
	Frequency    string    `json:"frequency"`
	StartDate    time.Time `json:"start_date"`
	Reason       string    `json:"reason"`
	Purpose      string    `json:"purpose"`
	SideEffects  []string  `json:"side_effects"`
	Monitoring   []string  `json:"monitoring"`
	HasKnowledge bool      `json:"has_knowledge"`
}

// AdherenceInfo is the per-medication information used to support adherence.
type AdherenceInfo struct {
	Medication       string `json:"medication"`
	Purpose          string `json:"purpose"`
	Dosage           string `json:"dosage"`
	Frequency        string `json:"frequency"`
	WhyImportant     string `json:"why_important"`
	WhatToWatch      string `json:"what_to_watch"`
	MonitoringNeeded string `json:"monitoring_needed"`
}

// TrendPoint is one observation on a trend series.
type TrendPoint struct {
	Date   time.Time `json:"date"`
	Value  *float64  `json:"value"`
	Status LabStatus `json:"status"`
}

// TrendSeries is the ascending-by-date history of a single test for charting.
type TrendSeries struct {
	PatientID string          `json:"patient_id"`
	Test      TestName        `json:"test_name"`
	Unit      string          `json:"unit"`
	Range     *ReferenceRange `json:"reference_range,omitempty"`
	Points    []TrendPoint    `json:"points"`
}

// EventKind distinguishes the two timeline event variants.
type EventKind string

const (
	LAB_EVENT              EventKind = "LAB"
	MEDICATION_START_EVENT EventKind = "MEDICATION_START"
)

// Label returns the display label for the event kind.
func (k EventKind) Label() string {
	switch k {
	case LAB_EVENT:
		return "Lab Test"
	case MEDICATION_START_EVENT:
		return "Medication Started"
	default:
		return string(k)
	}
}

// TimelineEvent is one entry on a patient's health timeline. Lab events populate Test and a
// lab status; medication-start events populate Medication, Dosage and Frequency and carry
// the INFO status.
type TimelineEvent struct {
	Date        time.Time `json:"date"`
	Kind        EventKind `json:"kind"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Test        TestName  `json:"test_name,omitempty"`
	Medication  string    `json:"medication,omitempty"`
	Dosage      string    `json:"dosage,omitempty"`
	Frequency   string    `json:"frequency,omitempty"`
}

// Summary is the aggregate health summary for a patient.
type Summary struct {
	PatientID         string     `json:"patient_id"`
	PatientName       string     `json:"patient_name"`
	Age               *int       `json:"age,omitempty"`
	Gender            string     `json:"gender"`
	TotalMedications  int        `json:"total_medications"`
	ActiveMedications []string   `json:"active_medications"`
	AbnormalLabCount  int        `json:"abnormal_lab_count"`
	AbnormalTests     []TestName `json:"abnormal_tests"`
	LatestLabDate     *time.Time `json:"latest_lab_date"`
	RiskFactors       []string   `json:"risk_factors"`
}

// SystemSet is a set of body-system names.
type SystemSet map[string]struct{}

// NewSystemSet builds a set from names.
func NewSystemSet(names ...string) SystemSet {
	set := make(SystemSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Add inserts a name.
func (s SystemSet) Add(name string) {
	s[name] = struct{}{}
}

// Contains reports membership.
func (s SystemSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s SystemSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SystemSets holds the affected and monitored systems for one patient.
// The two sets never share a member: a system that is both is reported as affected.
type SystemSets struct {
	Affected  SystemSet `json:"-"`
	Monitored SystemSet `json:"-"`
}

// Opacity returns the diagram opacity for a system and whether it should be painted at all.
func (s SystemSets) Opacity(name string) (float64, bool) {
	switch {
	case s.Affected.Contains(name):
		return AffectedOpacity, true
	case s.Monitored.Contains(name):
		return MonitoredOpacity, true
	default:
		return 0, false
	}
}

// Diagram opacities for affected and monitored-only systems.
const (
	AffectedOpacity  = 1.0
	MonitoredOpacity = 0.4
)

// SystemsView is the serializable form of SystemSets.
type SystemsView struct {
	PatientID string   `json:"patient_id"`
	Affected  []string `json:"affected_systems"`
	Monitored []string `json:"monitored_systems"`
}

// DiagramView is the annotated anatomy graphic for a patient. When Available is false the
// diagram section is skipped and Warning explains why; when annotation failed softly the
// markup is the unmodified base graphic and Warning carries the parse error.
type DiagramView struct {
	PatientID string   `json:"patient_id"`
	Available bool     `json:"available"`
	Gender    string   `json:"gender"`
	Affected  []string `json:"affected_systems"`
	Monitored []string `json:"monitored_systems"`
	Recolored int      `json:"recolored_elements"`
	Markup    string   `json:"markup,omitempty"`
	Warning   string   `json:"warning,omitempty"`
}

// PatientReport bundles every derived view for a patient.
type PatientReport struct {
	Patient     Patient            `json:"patient"`
	Summary     Summary            `json:"summary"`
	Medications []MedicationDetail `json:"medications"`
	Adherence   []AdherenceInfo    `json:"adherence"`
	Labs        []ClassifiedLab    `json:"labs"`
	Abnormal    []ClassifiedLab    `json:"abnormal_labs"`
	Timeline    []TimelineEvent    `json:"timeline"`
	Systems     SystemsView        `json:"systems"`
	Diagram     DiagramView        `json:"diagram"`
	GeneratedAt time.Time          `json:"generated_at"`
}
