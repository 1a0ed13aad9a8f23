package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/visual-health-insight/internal/service"
	"github.com/visual-health-insight/internal/source"
	"github.com/visual-health-insight/internal/store"
)

func newMapper(s *store.Store) *service.BodySystemMapper {
	return service.NewBodySystemMapper(s, service.NewLabClassifier(service.NewReferenceRangeResolver(s)))
}

func TestBodySystemMapper_SystemsFor(t *testing.T) {
	mapper := newMapper(newStore(t, nil))

	sets := mapper.SystemsFor("P001")
	assert.Equal(t, []string{"Cardiovascular"}, sets.Affected.Sorted())
	assert.Equal(t, []string{"Endocrine", "Hepatic"}, sets.Monitored.Sorted(),
		"cardiovascular is monitored too but reported only as affected")

	none := mapper.SystemsFor("P002")
	assert.Empty(t, none.Affected, "creatinine is within range")
	assert.Empty(t, none.Monitored, "lisinopril has no knowledge entry")

	unknown := mapper.SystemsFor("P999")
	assert.Empty(t, unknown.Affected)
	assert.Empty(t, unknown.Monitored)
}

func TestBodySystemMapper_LatestObservationDecides(t *testing.T) {
	s := newStore(t, func(raw *source.RawDatasets) {
		raw.Labs = append(raw.Labs,
			source.RawLab{Row: 6, PatientID: "P002", Date: "2024-05-01", TestName: "CREATININE", Value: "1.0", Unit: "mg/dL"},
			source.RawLab{Row: 7, PatientID: "P002", Date: "2024-05-01", TestName: "creatinine", Value: "2.4", Unit: "mg/dL"},
			source.RawLab{Row: 8, PatientID: "P001", Date: "2024-06-01", TestName: "LDL Cholesterol", Value: "110", Unit: "mg/dL"},
		)
	})
	mapper := newMapper(s)

	p2 := mapper.SystemsFor("P002")
	assert.True(t, p2.Affected.Contains("Renal"), "on equal dates the later row wins")

	p1 := mapper.SystemsFor("P001")
	assert.Empty(t, p1.Affected, "latest LDL is back in range")
	assert.Equal(t, []string{"Cardiovascular", "Endocrine", "Hepatic"}, p1.Monitored.Sorted())
}

func TestBodySystemMapper_Disjoint(t *testing.T) {
	mapper := newMapper(newStore(t, nil))

	for _, id := range []string{"P001", "P002"} {
		sets := mapper.SystemsFor(id)
		for name := range sets.Affected {
			assert.False(t, sets.Monitored.Contains(name), "%s in both sets for %s", name, id)
		}
	}

	view := mapper.View("P001")
	assert.Equal(t, "P001", view.PatientID)
	assert.Equal(t, []string{"Cardiovascular"}, view.Affected)
}
