// Package store holds the normalized, immutable in-memory clinical record tables. A Store is
// built once from raw datasets and then shared read-only by every view computation.
package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/visual-health-insight/internal/domain"
	"github.com/visual-health-insight/internal/source"
)

// dateLayouts are the accepted date formats, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"01/02/2006",
}

// Store implements domain.RecordReader over normalized tables.
type Store struct {
	patients     []domain.Patient
	patientIndex map[string]int
	labs         map[string][]domain.LabObservation
	medications  map[string][]domain.Medication
	knowledge    map[string]domain.MedicationKnowledge
	ranges       map[domain.TestName]domain.ReferenceRange
	rangeOrder   []domain.TestName
	bodyMap      domain.BodyMap
	graphics     map[domain.GraphicGender]string
	labCount     int
	medCount     int
}

var _ domain.RecordReader = (*Store)(nil)

// Stats summarizes the loaded tables.
type Stats struct {
	Patients        int  `json:"patients"`
	LabObservations int  `json:"lab_observations"`
	Medications     int  `json:"medications"`
	Knowledge       int  `json:"medication_knowledge"`
	ReferenceRanges int  `json:"reference_ranges"`
	BodySystems     int  `json:"body_systems"`
	MaleGraphic     bool `json:"male_graphic"`
	FemaleGraphic   bool `json:"female_graphic"`
}

// Load reads every dataset from src and builds a Store.
func Load(ctx context.Context, src source.Source, logger *logrus.Logger) (*Store, error) {
	raw, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	s, err := New(raw, logger)
	if err != nil {
		return nil, err
	}
	logger.WithField("source", src.Describe()).Info("Clinical records loaded")
	return s, nil
}

// New normalizes raw datasets. Any required dataset that is empty or structurally invalid
// fails the whole construction.
func New(raw *source.RawDatasets, logger *logrus.Logger) (*Store, error) {
	s := &Store{
		patientIndex: make(map[string]int),
		labs:         make(map[string][]domain.LabObservation),
		medications:  make(map[string][]domain.Medication),
		knowledge:    make(map[string]domain.MedicationKnowledge),
		ranges:       make(map[domain.TestName]domain.ReferenceRange),
		graphics:     make(map[domain.GraphicGender]string),
	}

	steps := []func(*source.RawDatasets, *logrus.Logger) error{
		s.loadPatients,
		s.loadLabs,
		s.loadMedications,
		s.loadKnowledge,
		s.loadRanges,
		s.loadBodyMap,
		s.loadGraphics,
	}
	for _, step := range steps {
		if err := step(raw, logger); err != nil {
			return nil, err
		}
	}

	stats := s.Stats()
	logger.WithFields(logrus.Fields{
		"patients":         stats.Patients,
		"lab_observations": stats.LabObservations,
		"medications":      stats.Medications,
		"knowledge":        stats.Knowledge,
		"reference_ranges": stats.ReferenceRanges,
		"body_systems":     stats.BodySystems,
	}).Info("Record store built")

	return s, nil
}

func (s *Store) loadPatients(raw *source.RawDatasets, _ *logrus.Logger) error {
	if len(raw.Patients) == 0 {
		return domain.NewDatasetEmptyError(source.DatasetPatients)
	}
	for _, rp := range raw.Patients {
		id := strings.TrimSpace(rp.ID)
		if id == "" {
			return domain.NewDatasetInvalidError(source.DatasetPatients, "patient with empty id", nil)
		}
		if _, dup := s.patientIndex[id]; dup {
			return domain.NewDatasetInvalidError(source.DatasetPatients, fmt.Sprintf("duplicate patient id %q", id), nil)
		}
		p := domain.Patient{
			ID:       id,
			Name:     strings.TrimSpace(rp.Name),
			Gender:   strings.TrimSpace(rp.Gender),
			HeightCM: parseNumber(rp.HeightCM),
			WeightKG: parseNumber(rp.WeightKG),
			BMI:      parseNumber(rp.BMI),
		}
		if age := parseNumber(rp.Age); age != nil {
			years := int(*age)
			p.Age = &years
		}
		s.patientIndex[id] = len(s.patients)
		s.patients = append(s.patients, p)
	}
	return nil
}

func (s *Store) loadLabs(raw *source.RawDatasets, logger *logrus.Logger) error {
	if len(raw.Labs) == 0 {
		return domain.NewDatasetEmptyError(source.DatasetLabs)
	}
	absent := 0
	for _, rl := range raw.Labs {
		test := domain.CanonicalTestName(rl.TestName)
		if test == "" {
			return domain.NewDatasetInvalidError(source.DatasetLabs, fmt.Sprintf("row %d: empty test_name", rl.Row), nil)
		}
		date, err := parseDate(rl.Date)
		if err != nil {
			return domain.NewDatasetInvalidError(source.DatasetLabs, fmt.Sprintf("row %d: test_date", rl.Row), err)
		}
		obs := domain.LabObservation{
			PatientID: strings.TrimSpace(rl.PatientID),
			Test:      test,
			Date:      date,
			Value:     parseNumber(rl.Value),
			Unit:      strings.TrimSpace(rl.Unit),
		}
		if obs.Value == nil {
			absent++
		}
		s.labs[obs.PatientID] = append(s.labs[obs.PatientID], obs)
		s.labCount++
	}
	if absent > 0 {
		logger.WithField("count", absent).Debug("Lab observations without a numeric value")
	}
	return nil
}

func (s *Store) loadMedications(raw *source.RawDatasets, _ *logrus.Logger) error {
	if len(raw.Medications) == 0 {
		return domain.NewDatasetEmptyError(source.DatasetMedications)
	}
	for _, rm := range raw.Medications {
		name := strings.TrimSpace(rm.Name)
		if name == "" {
			return domain.NewDatasetInvalidError(source.DatasetMedications, fmt.Sprintf("row %d: empty medication_name", rm.Row), nil)
		}
		start, err := parseDate(rm.StartDate)
		if err != nil {
			return domain.NewDatasetInvalidError(source.DatasetMedications, fmt.Sprintf("row %d: start_date", rm.Row), err)
		}
		med := domain.Medication{
			PatientID: strings.TrimSpace(rm.PatientID),
			Name:      name,
			Dose:      strings.TrimSpace(rm.Dose),
			Frequency: strings.TrimSpace(rm.Frequency),
			StartDate: start,
			Reason:    strings.TrimSpace(rm.Reason),
		}
		s.medications[med.PatientID] = append(s.medications[med.PatientID], med)
		s.medCount++
	}
	return nil
}

func (s *Store) loadKnowledge(raw *source.RawDatasets, _ *logrus.Logger) error {
	if len(raw.Knowledge) == 0 {
		return domain.NewDatasetEmptyError(source.DatasetMedicationKnowledge)
	}
	for _, rk := range raw.Knowledge {
		name := strings.TrimSpace(rk.Name)
		if name == "" {
			return domain.NewDatasetInvalidError(source.DatasetMedicationKnowledge, "entry with empty medication name", nil)
		}
		s.knowledge[name] = domain.MedicationKnowledge{
			Name:        name,
			Purpose:     strings.TrimSpace(rk.Purpose),
			SideEffects: rk.SideEffects,
			Monitoring:  rk.Monitoring,
		}
	}
	return nil
}

// loadRanges canonicalizes range keys once. When two keys collide after canonicalization the
// first one in source order wins.
func (s *Store) loadRanges(raw *source.RawDatasets, logger *logrus.Logger) error {
	if len(raw.Ranges) == 0 {
		return domain.NewDatasetEmptyError(source.DatasetReferenceRanges)
	}
	for _, rr := range raw.Ranges {
		test := domain.CanonicalTestName(rr.TestName)
		if test == "" {
			return domain.NewDatasetInvalidError(source.DatasetReferenceRanges, "range with empty test name", nil)
		}
		rng := domain.ReferenceRange{Test: test, Low: rr.Low, High: rr.High}
		if err := rng.Validate(); err != nil {
			return domain.NewDatasetInvalidError(source.DatasetReferenceRanges, fmt.Sprintf("test %q", rr.TestName), err)
		}
		if _, dup := s.ranges[test]; dup {
			logger.WithFields(logrus.Fields{
				"test": rr.TestName,
				"key":  test,
			}).Warn("Reference range key collides after case folding, keeping the first")
			continue
		}
		s.ranges[test] = rng
		s.rangeOrder = append(s.rangeOrder, test)
	}
	return nil
}

func (s *Store) loadBodyMap(raw *source.RawDatasets, _ *logrus.Logger) error {
	if len(raw.BodyMap) == 0 {
		return domain.NewDatasetEmptyError(source.DatasetBodyMap)
	}
	seen := make(map[string]bool)
	for _, rb := range raw.BodyMap {
		name := strings.TrimSpace(rb.Name)
		if name == "" {
			return domain.NewDatasetInvalidError(source.DatasetBodyMap, "system with empty name", nil)
		}
		if seen[name] {
			return domain.NewDatasetInvalidError(source.DatasetBodyMap, fmt.Sprintf("duplicate system %q", name), nil)
		}
		seen[name] = true

		sys := domain.BodySystem{Name: name, Color: strings.TrimSpace(rb.Color)}
		if sys.Color == "" {
			sys.Color = domain.DefaultSystemColor
		}
		for _, id := range rb.LabelIDs {
			if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
				sys.LabelIDs = append(sys.LabelIDs, id)
			}
		}
		for _, t := range rb.Tests {
			if test := domain.CanonicalTestName(t); test != "" {
				sys.Tests = append(sys.Tests, test)
			}
		}
		s.bodyMap = append(s.bodyMap, sys)
	}
	return nil
}

func (s *Store) loadGraphics(raw *source.RawDatasets, _ *logrus.Logger) error {
	for g, markup := range raw.Graphics {
		if strings.TrimSpace(markup) != "" {
			s.graphics[g] = markup
		}
	}
	if len(s.graphics) == 0 {
		return domain.NewDatasetMissingError(source.DatasetGraphics, fmt.Errorf("no anatomy graphic available"))
	}
	return nil
}

// Patients returns every registered patient ordered by id.
func (s *Store) Patients() []domain.Patient {
	return slices.Clone(s.patients)
}

// Patient returns the patient with the given id.
func (s *Store) Patient(id string) (domain.Patient, bool) {
	i, ok := s.patientIndex[id]
	if !ok {
		return domain.Patient{}, false
	}
	return s.patients[i], true
}

// Labs returns the patient's observations in load order.
func (s *Store) Labs(patientID string) []domain.LabObservation {
	return slices.Clone(s.labs[patientID])
}

// Medications returns the patient's medications in load order.
func (s *Store) Medications(patientID string) []domain.Medication {
	return slices.Clone(s.medications[patientID])
}

// Knowledge returns the knowledge entry for an exact medication name.
func (s *Store) Knowledge(medicationName string) (domain.MedicationKnowledge, bool) {
	k, ok := s.knowledge[strings.TrimSpace(medicationName)]
	return k, ok
}

// ReferenceRange returns the range for a canonical test name.
func (s *Store) ReferenceRange(test domain.TestName) (domain.ReferenceRange, bool) {
	r, ok := s.ranges[test]
	return r, ok
}

// ReferenceRanges returns the active ranges in source order.
func (s *Store) ReferenceRanges() []domain.ReferenceRange {
	out := make([]domain.ReferenceRange, 0, len(s.rangeOrder))
	for _, t := range s.rangeOrder {
		out = append(out, s.ranges[t])
	}
	return out
}

// BodyMap returns the ordered body-system mapping.
func (s *Store) BodyMap() domain.BodyMap {
	return slices.Clone(s.bodyMap)
}

// Graphic returns the base anatomy graphic for a variant.
func (s *Store) Graphic(gender domain.GraphicGender) (string, bool) {
	g, ok := s.graphics[gender]
	return g, ok
}

// Stats returns table sizes.
func (s *Store) Stats() Stats {
	_, male := s.graphics[domain.GraphicMale]
	_, female := s.graphics[domain.GraphicFemale]
	return Stats{
		Patients:        len(s.patients),
		LabObservations: s.labCount,
		Medications:     s.medCount,
		Knowledge:       len(s.knowledge),
		ReferenceRanges: len(s.rangeOrder),
		BodySystems:     len(s.bodyMap),
		MaleGraphic:     male,
		FemaleGraphic:   female,
	}
}

// parseNumber coerces text to a number. Empty, non-numeric and NaN values are absent.
func parseNumber(text string) *float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) {
		return nil
	}
	return &v
}

func parseDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}
