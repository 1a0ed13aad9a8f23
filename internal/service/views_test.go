package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visual-health-insight/internal/domain"
	"github.com/visual-health-insight/internal/service"
	"github.com/visual-health-insight/internal/source"
)

func newViews(t *testing.T) *service.ViewBuilder {
	return service.NewViewBuilder(newStore(t, nil), quietLogger())
}

func TestMedicationsFor(t *testing.T) {
	views := newViews(t)

	meds := views.MedicationsFor("P001")
	require.Len(t, meds, 2)
	assert.Equal(t, "Atorvastatin", meds[0].Name, "newest start date first")
	assert.Equal(t, "Cholesterol reduction", meds[0].Purpose)
	assert.Equal(t, []string{"LDL Cholesterol", "ALT"}, meds[0].Monitoring)
	assert.True(t, meds[0].HasKnowledge)
	assert.Equal(t, "Metformin", meds[1].Name)
	assert.Equal(t, date("2023-06-01"), meds[1].StartDate)

	unmatched := views.MedicationsFor("P002")
	require.Len(t, unmatched, 1)
	assert.Equal(t, "Lisinopril", unmatched[0].Name)
	assert.False(t, unmatched[0].HasKnowledge)
	assert.Equal(t, "Hypertension", unmatched[0].Purpose)
	assert.Empty(t, unmatched[0].SideEffects)
	assert.NotNil(t, unmatched[0].SideEffects)

	assert.Empty(t, views.MedicationsFor("P999"))
}

func TestLabsFor(t *testing.T) {
	views := newViews(t)

	labs := views.LabsFor("P001")
	require.Len(t, labs, 3)
	assert.Equal(t, date("2024-03-15"), labs[0].Date)
	assert.Equal(t, domain.TestName("glucose"), labs[0].Test, "equal dates keep load order")
	assert.Equal(t, domain.NORMAL, labs[0].Status)
	assert.Equal(t, domain.TestName("ldl cholesterol"), labs[1].Test)
	assert.Equal(t, domain.HIGH, labs[1].Status)
	assert.Equal(t, date("2024-01-15"), labs[2].Date)
	assert.Equal(t, domain.HIGH, labs[2].Status)

	for i := 1; i < len(labs); i++ {
		assert.False(t, labs[i].Date.After(labs[i-1].Date))
	}

	abnormal := views.AbnormalLabsFor("P001")
	require.Len(t, abnormal, 2)
	for _, lab := range abnormal {
		assert.True(t, lab.Status.IsAbnormal())
	}

	assert.Empty(t, views.AbnormalLabsFor("P002"))
	assert.Empty(t, views.LabsFor("P999"))
}

func TestTrendFor(t *testing.T) {
	views := newViews(t)

	series := views.TrendFor("P001", "GLUCOSE")
	assert.Equal(t, domain.TestName("glucose"), series.Test)
	assert.Equal(t, "mg/dL", series.Unit)
	require.NotNil(t, series.Range)
	assert.Equal(t, 99.0, *series.Range.High)

	require.Len(t, series.Points, 2)
	assert.Equal(t, date("2024-01-15"), series.Points[0].Date, "oldest first")
	assert.Equal(t, 105.0, *series.Points[0].Value)
	assert.Equal(t, domain.HIGH, series.Points[0].Status)
	assert.Equal(t, domain.NORMAL, series.Points[1].Status)

	empty := views.TrendFor("P001", "Creatinine")
	assert.Empty(t, empty.Points)
	assert.NotNil(t, empty.Range)
}

func TestTimelineFor(t *testing.T) {
	views := newViews(t)

	events := views.TimelineFor("P001")
	require.Len(t, events, 5)

	expected := []struct {
		kind        domain.EventKind
		description string
		status      string
	}{
		{domain.LAB_EVENT, "GLUCOSE: 92 mg/dL", "NORMAL"},
		{domain.LAB_EVENT, "LDL CHOLESTEROL: 160 mg/dL", "HIGH"},
		{domain.LAB_EVENT, "GLUCOSE: 105 mg/dL", "HIGH"},
		{domain.MEDICATION_START_EVENT, "Atorvastatin - 20mg (once daily)", domain.StatusInfo},
		{domain.MEDICATION_START_EVENT, "Metformin - 500mg (twice daily)", domain.StatusInfo},
	}
	for i, want := range expected {
		assert.Equal(t, want.kind, events[i].Kind)
		assert.Equal(t, want.kind.Label(), events[i].Type)
		assert.Equal(t, want.description, events[i].Description)
		assert.Equal(t, want.status, events[i].Status)
	}
	assert.Equal(t, "Metformin", events[4].Medication)
	assert.Equal(t, "500mg", events[4].Dosage)
}

func TestTimelineFor_SameDayAndAbsentValues(t *testing.T) {
	s := newStore(t, func(raw *source.RawDatasets) {
		raw.Medications = append(raw.Medications, source.RawMedication{
			Row: 4, PatientID: "P002", Name: "Potassium chloride", Dose: "20mEq", Frequency: "daily",
			StartDate: "2024-02-01", Reason: "Low potassium",
		})
	})
	views := service.NewViewBuilder(s, quietLogger())

	events := views.TimelineFor("P002")
	require.Len(t, events, 4)
	assert.Equal(t, "CREATININE: 1 mg/dL", events[0].Description)
	assert.Equal(t, "POTASSIUM: N/A mmol/L", events[1].Description)
	assert.Equal(t, "UNKNOWN", events[1].Status)
	assert.Equal(t, domain.MEDICATION_START_EVENT, events[2].Kind, "labs precede medications on the same date")
	assert.Equal(t, "Lisinopril", events[3].Medication)
}

func TestSummaryFor(t *testing.T) {
	views := newViews(t)

	summary := views.SummaryFor("P001")
	assert.Equal(t, "P001", summary.PatientID)
	assert.Equal(t, "John Smith", summary.PatientName)
	require.NotNil(t, summary.Age)
	assert.Equal(t, 45, *summary.Age)
	assert.Equal(t, "Male", summary.Gender)
	assert.Equal(t, 2, summary.TotalMedications)
	assert.Equal(t, []string{"Atorvastatin", "Metformin"}, summary.ActiveMedications)
	assert.Equal(t, 2, summary.AbnormalLabCount)
	assert.Equal(t, []domain.TestName{"ldl cholesterol", "glucose"}, summary.AbnormalTests)
	require.NotNil(t, summary.LatestLabDate)
	assert.Equal(t, date("2024-03-15"), *summary.LatestLabDate)
	assert.Equal(t, []string{
		"Elevated cholesterol - cardiovascular risk",
		"Blood sugar abnormality - diabetes risk",
	}, summary.RiskFactors)

	normal := views.SummaryFor("P002")
	assert.Zero(t, normal.AbnormalLabCount)
	assert.Equal(t, []string{service.NoRiskFactors}, normal.RiskFactors)
	assert.Equal(t, date("2024-02-01"), *normal.LatestLabDate)
}

func TestRiskFactorsFor(t *testing.T) {
	views := newViews(t)

	assert.Equal(t, []string{
		"Elevated cholesterol - cardiovascular risk",
		"Blood sugar abnormality - diabetes risk",
	}, views.RiskFactorsFor("P001"))
	assert.Equal(t, []string{service.NoRiskFactors}, views.RiskFactorsFor("P002"))
	assert.Equal(t, []string{service.NoRiskFactors}, views.RiskFactorsFor("P999"))
}

func TestSummaryFor_UnknownPatient(t *testing.T) {
	summary := newViews(t).SummaryFor("P999")

	assert.Equal(t, service.UnknownPatientName, summary.PatientName)
	assert.Nil(t, summary.Age)
	assert.Nil(t, summary.LatestLabDate)
	assert.Zero(t, summary.TotalMedications)
	assert.Empty(t, summary.AbnormalTests)
	assert.Equal(t, []string{service.NoRiskFactors}, summary.RiskFactors)
}

func TestAdherenceFor(t *testing.T) {
	views := newViews(t)

	info := views.AdherenceFor("P001")
	require.Len(t, info, 2)
	assert.Equal(t, domain.AdherenceInfo{
		Medication:       "Atorvastatin",
		Purpose:          "Cholesterol reduction",
		Dosage:           "20mg",
		Frequency:        "once daily",
		WhyImportant:     "Cholesterol reduction",
		WhatToWatch:      "Muscle pain",
		MonitoringNeeded: "LDL Cholesterol, ALT",
	}, info[0])
	assert.Equal(t, "Nausea, Diarrhea", info[1].WhatToWatch)

	fallback := views.AdherenceFor("P002")
	require.Len(t, fallback, 1)
	assert.Equal(t, "Hypertension", fallback[0].WhyImportant)
	assert.Empty(t, fallback[0].WhatToWatch)
	assert.Empty(t, fallback[0].MonitoringNeeded)
}
