// Package source loads the raw clinical datasets from their backing storage: a directory or
// S3 bucket of JSON, CSV and SVG files, or a SQLite or PostgreSQL database with the same
// content. Rows are returned as untyped text; normalization and validation happen in the
// record store.
package source

import (
	"context"

	"github.com/visual-health-insight/internal/domain"
)

// Dataset names used in load errors and logs.
const (
	DatasetPatients            = "patients"
	DatasetLabs                = "lab_results"
	DatasetMedications         = "medications"
	DatasetMedicationKnowledge = "medication_knowledge"
	DatasetReferenceRanges     = "reference_ranges"
	DatasetBodyMap             = "body_system_mapping"
	DatasetGraphics            = "anatomy_graphics"
)

// Source loads every dataset in one pass.
type Source interface {
	Load(ctx context.Context) (*RawDatasets, error)
	Describe() string
}

// RawPatient is a patient registry entry before numeric coercion.
type RawPatient struct {
	ID       string
	Name     string
	Age      string
	Gender   string
	HeightCM string
	WeightKG string
	BMI      string
}

// RawLab is one lab results row. Row is the 1-based data row used in error messages.
type RawLab struct {
	Row       int
	PatientID string
	Date      string
	TestName  string
	Value     string
	Unit      string
}

// RawMedication is one medications row.
type RawMedication struct {
	Row       int
	PatientID string
	Name      string
	Dose      string
	Frequency string
	StartDate string
	Reason    string
}

// RawKnowledge is one medication knowledge entry.
type RawKnowledge struct {
	Name        string
	Purpose     string
	SideEffects []string
	Monitoring  []string
}

// RawRange is one reference range entry in document order.
type RawRange struct {
	TestName string
	Low      *float64
	High     *float64
}

// RawBodySystem is one body-system mapping entry in document order.
type RawBodySystem struct {
	Name     string
	Color    string
	LabelIDs []string
	Tests    []string
}

// RawDatasets is everything a source produced. Graphics holds only the variants found.
type RawDatasets struct {
	Patients    []RawPatient
	Labs        []RawLab
	Medications []RawMedication
	Knowledge   []RawKnowledge
	Ranges      []RawRange
	BodyMap     []RawBodySystem
	Graphics    map[domain.GraphicGender]string
}

func newRawDatasets() *RawDatasets {
	return &RawDatasets{Graphics: make(map[domain.GraphicGender]string)}
}
