package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/visual-health-insight/internal/domain"
)

// UnknownPatientName is reported in summaries for ids missing from the registry.
const UnknownPatientName = "Unknown"

// ViewBuilder derives per-patient views from the loaded records. Every method is a pure
// function of the records; nothing is written back.
type ViewBuilder struct {
	records    domain.RecordReader
	classifier *LabClassifier
	risk       *RiskEngine
	logger     *logrus.Logger
}

// NewViewBuilder creates a view builder over records.
func NewViewBuilder(records domain.RecordReader, logger *logrus.Logger) *ViewBuilder {
	return &ViewBuilder{
		records:    records,
		classifier: NewLabClassifier(NewReferenceRangeResolver(records)),
		risk:       NewRiskEngine(logger),
		logger:     logger,
	}
}

// Classifier returns the lab classifier used by the builder.
func (b *ViewBuilder) Classifier() *LabClassifier {
	return b.classifier
}

// MedicationsFor joins each medication with its knowledge entry, newest start date first.
// A medication without knowledge takes its purpose from the record's reason.
func (b *ViewBuilder) MedicationsFor(patientID string) []domain.MedicationDetail {
	meds := b.records.Medications(patientID)
	details := make([]domain.MedicationDetail, 0, len(meds))
	for _, med := range meds {
		detail := domain.MedicationDetail{
			Name:        med.Name,
			Dosage:      med.Dose,
			Frequency:   med.Frequency,
			StartDate:   med.StartDate,
			Reason:      med.Reason,
			Purpose:     med.Reason,
			SideEffects: []string{},
			Monitoring:  []string{},
		}
		if info, ok := b.records.Knowledge(med.Name); ok {
			detail.HasKnowledge = true
			if info.Purpose != "" {
				detail.Purpose = info.Purpose
			}
			if info.SideEffects != nil {
				detail.SideEffects = info.SideEffects
			}
			if info.Monitoring != nil {
				detail.Monitoring = info.Monitoring
			}
		}
		details = append(details, detail)
	}

	sort.SliceStable(details, func(i, j int) bool {
		return details[i].StartDate.After(details[j].StartDate)
	})
	return details
}

// LabsFor classifies all of the patient's observations, newest first.
func (b *ViewBuilder) LabsFor(patientID string) []domain.ClassifiedLab {
	obs := b.records.Labs(patientID)
	labs := make([]domain.ClassifiedLab, 0, len(obs))
	for _, o := range obs {
		labs = append(labs, b.classifier.Classify(o))
	}

	sort.SliceStable(labs, func(i, j int) bool {
		return labs[i].Date.After(labs[j].Date)
	})
	return labs
}

// AbnormalLabsFor is LabsFor restricted to LOW and HIGH results.
func (b *ViewBuilder) AbnormalLabsFor(patientID string) []domain.ClassifiedLab {
	return abnormalOnly(b.LabsFor(patientID))
}

func abnormalOnly(labs []domain.ClassifiedLab) []domain.ClassifiedLab {
	out := make([]domain.ClassifiedLab, 0)
	for _, lab := range labs {
		if lab.Status.IsAbnormal() {
			out = append(out, lab)
		}
	}
	return out
}

// TrendFor returns the history of one test, oldest first, with the resolved range and unit.
func (b *ViewBuilder) TrendFor(patientID, test string) domain.TrendSeries {
	name := domain.CanonicalTestName(test)
	series := domain.TrendSeries{
		PatientID: patientID,
		Test:      name,
		Points:    []domain.TrendPoint{},
	}
	if rng, ok := b.classifier.Resolver().ResolveCanonical(name); ok {
		series.Range = &rng
	}

	for _, obs := range b.records.Labs(patientID) {
		if obs.Test != name {
			continue
		}
		if series.Unit == "" {
			series.Unit = obs.Unit
		}
		series.Points = append(series.Points, domain.TrendPoint{
			Date:   obs.Date,
			Value:  obs.Value,
			Status: Classify(obs.Value, series.Range),
		})
	}

	sort.SliceStable(series.Points, func(i, j int) bool {
		return series.Points[i].Date.Before(series.Points[j].Date)
	})
	return series
}

// TimelineFor merges lab and medication-start events into one sequence, newest first.
// Events sharing a date keep labs ahead of medications.
func (b *ViewBuilder) TimelineFor(patientID string) []domain.TimelineEvent {
	labs := b.LabsFor(patientID)
	meds := b.MedicationsFor(patientID)

	events := make([]domain.TimelineEvent, 0, len(labs)+len(meds))
	for _, lab := range labs {
		events = append(events, domain.TimelineEvent{
			Date:        lab.Date,
			Kind:        domain.LAB_EVENT,
			Type:        domain.LAB_EVENT.Label(),
			Description: labDescription(lab),
			Status:      lab.Status.String(),
			Test:        lab.Test,
		})
	}
	for _, med := range meds {
		events = append(events, domain.TimelineEvent{
			Date:        med.StartDate,
			Kind:        domain.MEDICATION_START_EVENT,
			Type:        domain.MEDICATION_START_EVENT.Label(),
			Description: fmt.Sprintf("%s - %s (%s)", med.Name, med.Dosage, med.Frequency),
			Status:      domain.StatusInfo,
			Medication:  med.Name,
			Dosage:      med.Dosage,
			Frequency:   med.Frequency,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.After(events[j].Date)
	})
	return events
}

func labDescription(lab domain.ClassifiedLab) string {
	value := "N/A"
	if lab.Value != nil {
		value = strconv.FormatFloat(*lab.Value, 'f', -1, 64)
	}
	return strings.TrimSpace(fmt.Sprintf("%s: %s %s", lab.Test.Display(), value, lab.Unit))
}

// RiskFactorsFor evaluates the risk categories over the patient's abnormal tests.
func (b *ViewBuilder) RiskFactorsFor(patientID string) []string {
	return b.risk.Evaluate(uniqueTests(b.AbnormalLabsFor(patientID)))
}

// uniqueTests lists distinct test names in order of first appearance.
func uniqueTests(labs []domain.ClassifiedLab) []domain.TestName {
	seen := make(map[domain.TestName]bool, len(labs))
	out := make([]domain.TestName, 0)
	for _, lab := range labs {
		if seen[lab.Test] {
			continue
		}
		seen[lab.Test] = true
		out = append(out, lab.Test)
	}
	return out
}

// SummaryFor aggregates the patient's headline facts.
func (b *ViewBuilder) SummaryFor(patientID string) domain.Summary {
	summary := domain.Summary{
		PatientID:   patientID,
		PatientName: UnknownPatientName,
	}
	if p, ok := b.records.Patient(patientID); ok {
		summary.PatientName = p.Name
		summary.Age = p.Age
		summary.Gender = p.Gender
	}

	meds := b.MedicationsFor(patientID)
	summary.TotalMedications = len(meds)
	summary.ActiveMedications = make([]string, 0, len(meds))
	for _, med := range meds {
		summary.ActiveMedications = append(summary.ActiveMedications, med.Name)
	}

	labs := b.LabsFor(patientID)
	abnormal := abnormalOnly(labs)
	summary.AbnormalLabCount = len(abnormal)
	summary.AbnormalTests = uniqueTests(abnormal)
	summary.LatestLabDate = latestDate(labs)
	summary.RiskFactors = b.risk.Evaluate(summary.AbnormalTests)
	return summary
}

func latestDate(labs []domain.ClassifiedLab) *time.Time {
	var latest *time.Time
	for i := range labs {
		if latest == nil || labs[i].Date.After(*latest) {
			d := labs[i].Date
			latest = &d
		}
	}
	return latest
}

// AdherenceFor lists what the patient should know about each medication.
func (b *ViewBuilder) AdherenceFor(patientID string) []domain.AdherenceInfo {
	meds := b.MedicationsFor(patientID)
	out := make([]domain.AdherenceInfo, 0, len(meds))
	for _, med := range meds {
		why := med.Reason
		if med.HasKnowledge && med.Purpose != "" {
			why = med.Purpose
		}
		out = append(out, domain.AdherenceInfo{
			Medication:       med.Name,
			Purpose:          med.Purpose,
			Dosage:           med.Dosage,
			Frequency:        med.Frequency,
			WhyImportant:     why,
			WhatToWatch:      strings.Join(med.SideEffects, ", "),
			MonitoringNeeded: strings.Join(med.Monitoring, ", "),
		})
	}
	return out
}
