package service

import (
	"strings"

	"github.com/visual-health-insight/internal/domain"
)

// BodySystemMapper derives which anatomical systems to highlight for a patient.
type BodySystemMapper struct {
	records    domain.RecordReader
	classifier *LabClassifier
}

// NewBodySystemMapper creates a mapper that classifies labs with classifier.
func NewBodySystemMapper(records domain.RecordReader, classifier *LabClassifier) *BodySystemMapper {
	return &BodySystemMapper{records: records, classifier: classifier}
}

// SystemsFor returns the affected and monitored system sets. A system is affected when the
// latest observation of any of its tests is abnormal, and monitored when one of its tests is
// named in a medication's monitoring list. Affected systems are removed from monitored.
func (m *BodySystemMapper) SystemsFor(patientID string) domain.SystemSets {
	sets := domain.SystemSets{
		Affected:  domain.NewSystemSet(),
		Monitored: domain.NewSystemSet(),
	}

	latest := m.latestStatuses(patientID)
	monitoring := m.monitoringText(patientID)

	for _, sys := range m.records.BodyMap() {
		for _, test := range sys.Tests {
			if latest[test].IsAbnormal() {
				sets.Affected.Add(sys.Name)
			}
			if mentions(monitoring, test) {
				sets.Monitored.Add(sys.Name)
			}
		}
	}

	for name := range sets.Affected {
		delete(sets.Monitored, name)
	}
	return sets
}

// View returns the serializable, sorted form of SystemsFor.
func (m *BodySystemMapper) View(patientID string) domain.SystemsView {
	sets := m.SystemsFor(patientID)
	return domain.SystemsView{
		PatientID: patientID,
		Affected:  sets.Affected.Sorted(),
		Monitored: sets.Monitored.Sorted(),
	}
}

// latestStatuses classifies the most recent observation of each test. On equal dates the
// observation loaded last wins.
func (m *BodySystemMapper) latestStatuses(patientID string) map[domain.TestName]domain.LabStatus {
	latest := make(map[domain.TestName]domain.LabObservation)
	for _, obs := range m.records.Labs(patientID) {
		if cur, ok := latest[obs.Test]; ok && obs.Date.Before(cur.Date) {
			continue
		}
		latest[obs.Test] = obs
	}

	statuses := make(map[domain.TestName]domain.LabStatus, len(latest))
	for test, obs := range latest {
		statuses[test] = m.classifier.Classify(obs).Status
	}
	return statuses
}

// monitoringText collects the lowercased monitoring entries of every medication that has a
// knowledge entry.
func (m *BodySystemMapper) monitoringText(patientID string) []string {
	var out []string
	for _, med := range m.records.Medications(patientID) {
		info, ok := m.records.Knowledge(med.Name)
		if !ok {
			continue
		}
		for _, entry := range info.Monitoring {
			out = append(out, strings.ToLower(entry))
		}
	}
	return out
}

func mentions(monitoring []string, test domain.TestName) bool {
	if test == "" {
		return false
	}
	for _, entry := range monitoring {
		if strings.Contains(entry, string(test)) {
			return true
		}
	}
	return false
}
