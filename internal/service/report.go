package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/visual-health-insight/internal/anatomy"
	"github.com/visual-health-insight/internal/cache"
	"github.com/visual-health-insight/internal/domain"
	"github.com/visual-health-insight/internal/metrics"
)

// ReportService assembles complete patient reports and annotated diagrams. Reports are
// memoized per patient since the underlying records never change after load.
type ReportService struct {
	records   domain.RecordReader
	views     *ViewBuilder
	mapper    *BodySystemMapper
	annotator *anatomy.Annotator
	cache     *cache.ReportCache
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	now       func() time.Time
}

// NewReportService creates a report service memoizing reports in reports.
func NewReportService(records domain.RecordReader, reports *cache.ReportCache, m *metrics.Metrics, logger *logrus.Logger) *ReportService {
	views := NewViewBuilder(records, logger)
	return &ReportService{
		records:   records,
		views:     views,
		mapper:    NewBodySystemMapper(records, views.Classifier()),
		annotator: anatomy.NewAnnotator(logger),
		cache:     reports,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Views returns the view builder backing the service.
func (s *ReportService) Views() *ViewBuilder {
	return s.views
}

// Mapper returns the body-system mapper backing the service.
func (s *ReportService) Mapper() *BodySystemMapper {
	return s.mapper
}

// CacheStatus reports the state of the shared Redis report tier.
func (s *ReportService) CacheStatus(ctx context.Context) string {
	return s.cache.Check(ctx)
}

// Patients lists every registered patient.
func (s *ReportService) Patients() []domain.Patient {
	return s.records.Patients()
}

// Patient returns a registered patient or ErrPatientNotFound.
func (s *ReportService) Patient(id string) (domain.Patient, error) {
	p, ok := s.records.Patient(id)
	if !ok {
		return domain.Patient{}, fmt.Errorf("%w: %s", domain.ErrPatientNotFound, id)
	}
	return p, nil
}

// Report returns the full report for a registered patient.
func (s *ReportService) Report(ctx context.Context, patientID string) (domain.PatientReport, error) {
	if report, tier, ok := s.cache.Get(ctx, patientID); ok {
		s.metrics.ReportCacheHits.WithLabelValues(tier).Inc()
		return report, nil
	}

	patient, err := s.Patient(patientID)
	if err != nil {
		return domain.PatientReport{}, err
	}

	start := time.Now()
	labs := s.views.LabsFor(patientID)
	report := domain.PatientReport{
		Patient:     patient,
		Summary:     s.views.SummaryFor(patientID),
		Medications: s.views.MedicationsFor(patientID),
		Adherence:   s.views.AdherenceFor(patientID),
		Labs:        labs,
		Abnormal:    abnormalOnly(labs),
		Timeline:    s.views.TimelineFor(patientID),
		Systems:     s.mapper.View(patientID),
		Diagram:     s.diagram(patient),
		GeneratedAt: s.now(),
	}

	s.cache.Add(ctx, patientID, report)
	s.metrics.ReportsBuilt.Inc()
	s.metrics.ReportCacheSize.Set(float64(s.cache.Len()))

	s.logger.WithFields(logrus.Fields{
		"patient_id":    patientID,
		"labs":          len(report.Labs),
		"abnormal_labs": len(report.Abnormal),
		"medications":   len(report.Medications),
		"duration":      time.Since(start),
	}).Info("Built patient report")

	return report, nil
}

// Diagram returns the annotated anatomy diagram for a registered patient. A missing graphic
// for the patient's gender or a malformed graphic is reported as a warning, never an error.
func (s *ReportService) Diagram(ctx context.Context, patientID string) (domain.DiagramView, error) {
	if report, tier, ok := s.cache.Get(ctx, patientID); ok {
		s.metrics.ReportCacheHits.WithLabelValues(tier).Inc()
		return report.Diagram, nil
	}
	patient, err := s.Patient(patientID)
	if err != nil {
		return domain.DiagramView{}, err
	}
	return s.diagram(patient), nil
}

func (s *ReportService) diagram(patient domain.Patient) domain.DiagramView {
	sets := s.mapper.SystemsFor(patient.ID)
	view := domain.DiagramView{
		PatientID: patient.ID,
		Gender:    patient.Gender,
		Affected:  sets.Affected.Sorted(),
		Monitored: sets.Monitored.Sorted(),
	}

	markup, err := s.graphicFor(patient)
	if err != nil {
		view.Warning = err.Error()
		s.metrics.DiagramOutcomes.WithLabelValues(metrics.DiagramUnavailable).Inc()
		s.logger.WithFields(logrus.Fields{
			"patient_id": patient.ID,
			"gender":     patient.Gender,
		}).Warn("No anatomy graphic for patient")
		return view
	}

	out, n, err := s.annotator.Annotate(patient.ID, markup, sets, s.records.BodyMap())
	view.Available = true
	view.Markup = out
	view.Recolored = n
	if err != nil {
		view.Warning = err.Error()
		s.metrics.DiagramOutcomes.WithLabelValues(metrics.DiagramMalformed).Inc()
		return view
	}

	s.metrics.DiagramOutcomes.WithLabelValues(metrics.DiagramAnnotated).Inc()
	s.metrics.RecoloredShapes.Observe(float64(n))
	return view
}

func (s *ReportService) graphicFor(patient domain.Patient) (string, error) {
	gender, ok := domain.GraphicGenderFor(patient.Gender)
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrNoGraphic, patient.Gender)
	}
	markup, ok := s.records.Graphic(gender)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrNoGraphic, gender)
	}
	return markup, nil
}

// IsNotFound reports whether err means the requested patient does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrPatientNotFound)
}
