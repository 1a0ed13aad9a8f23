// Package sourcetest provides a small, consistent clinical dataset for tests in every layer.
package sourcetest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/visual-health-insight/internal/domain"
	"github.com/visual-health-insight/internal/source"
)

// Default file names, matching the configuration defaults.
const (
	PatientsFile        = "patients.json"
	LabsFile            = "patient_labs.csv"
	MedicationsFile     = "patient_medications.csv"
	KnowledgeFile       = "medications_database.json"
	ReferenceRangesFile = "test_reference_ranges.json"
	BodyMapFile         = "body_system_mapping.json"
	MaleGraphicFile     = "homo_sapiens_male.svg"
	FemaleGraphicFile   = "homo_sapiens_female.svg"
)

// PatientsJSON registers two patients, deliberately out of id order.
const PatientsJSON = `{
  "patients": {
    "P002": {"name": "Maria Garcia", "general_info": {"age": 52, "gender": "Female", "height_cm": 162, "weight_kg": 70.5, "bmi": 26.9}},
    "P001": {"name": "John Smith", "general_info": {"age": 45, "gender": "Male", "height_cm": 175, "weight_kg": 82, "bmi": 26.8}}
  }
}`

// LabsCSV: P001 glucose was high then normal, LDL is high on the latest draw.
// P002 creatinine is normal and one potassium value is not numeric.
const LabsCSV = `patient_id,test_date,test_name,test_value,unit
P001,2024-01-15,Glucose,105,mg/dL
P001,2024-03-15,Glucose,92,mg/dL
P001,2024-03-15,LDL Cholesterol,160,mg/dL
P002,2024-02-01,Creatinine,1.0,mg/dL
P002,2024-02-01,Potassium,pending,mmol/L
`

// MedicationsCSV gives P001 two medications and P002 one without a knowledge entry.
const MedicationsCSV = `patient_id,medication_name,dose,frequency,start_date,reason
P001,Metformin,500mg,twice daily,2023-06-01,Type 2 diabetes
P001,Atorvastatin,20mg,once daily,2023-09-10,High cholesterol
P002,Lisinopril,10mg,once daily,2022-11-20,Hypertension
`

// KnowledgeJSON uses the "medications" wrapper.
const KnowledgeJSON = `{
  "medications": {
    "Metformin": {"purpose": "Blood sugar control", "common_side_effects": ["Nausea", "Diarrhea"], "monitoring_required": ["Glucose", "HbA1c"]},
    "Atorvastatin": {"purpose": "Cholesterol reduction", "common_side_effects": ["Muscle pain"], "monitoring_required": ["LDL Cholesterol", "ALT"]}
  }
}`

// ReferenceRangesJSON includes an open-ended LDL range.
const ReferenceRangesJSON = `{
  "Glucose": {"low": 70, "high": 99},
  "LDL Cholesterol": {"high": 130},
  "Creatinine": {"low": 0.6, "high": 1.2},
  "ALT": {"low": 7, "high": 56}
}`

// BodyMapJSON maps three systems.
const BodyMapJSON = `{
  "Cardiovascular": {"color": "#e53935", "svg_ids": ["heart"], "tests": ["LDL Cholesterol"]},
  "Endocrine": {"color": "#8e24aa", "svg_ids": ["pancreas"], "tests": ["Glucose", "HbA1c"]},
  "Hepatic": {"color": "#fb8c00", "svg_ids": ["liver"], "tests": ["ALT"]},
  "Renal": {"color": "#1e88e5", "svg_ids": ["kidney"], "tests": ["Creatinine"]}
}`

// MaleSVG has one labelled group per system.
const MaleSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 200">
  <g id="organ-heart"><title>Heart</title><path d="M10 10 L20 20" style="fill:#cccccc;stroke:#999999;opacity:0.9"/></g>
  <g id="organ-pancreas"><title>Pancreas</title><ellipse cx="50" cy="90" rx="8" ry="3"/></g>
  <g id="organ-liver"><title>Liver</title><path d="M30 80 L40 85"/></g>
  <g id="organ-kidney"><title>Left kidney</title><path d="M60 100 L62 110"/><circle cx="61" cy="105" r="2"/></g>
</svg>`

// FemaleSVG mirrors MaleSVG.
const FemaleSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 200">
  <g><title>Heart</title><path d="M10 10 L20 20"/></g>
  <g><title>Pancreas</title><ellipse cx="50" cy="90" rx="8" ry="3"/></g>
  <g><title>Liver</title><path d="M30 80 L40 85"/></g>
  <g><title>Right kidney</title><path d="M60 100 L62 110"/></g>
</svg>`

// Files returns the fixture file set keyed by default file name.
func Files() map[string]string {
	return map[string]string{
		PatientsFile:        PatientsJSON,
		LabsFile:            LabsCSV,
		MedicationsFile:     MedicationsCSV,
		KnowledgeFile:       KnowledgeJSON,
		ReferenceRangesFile: ReferenceRangesJSON,
		BodyMapFile:         BodyMapJSON,
		MaleGraphicFile:     MaleSVG,
		FemaleGraphicFile:   FemaleSVG,
	}
}

// DataFiles returns the file-name configuration matching Files.
func DataFiles() domain.DataFilesConfig {
	return domain.DataFilesConfig{
		Patients:            PatientsFile,
		Labs:                LabsFile,
		Medications:         MedicationsFile,
		MedicationKnowledge: KnowledgeFile,
		ReferenceRanges:     ReferenceRangesFile,
		BodyMap:             BodyMapFile,
		MaleGraphic:         MaleGraphicFile,
		FemaleGraphic:       FemaleGraphicFile,
	}
}

// WriteDir writes the fixture files into a fresh temp directory, applying overrides.
// An override with an empty value removes the file.
func WriteDir(t testing.TB, overrides map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := Files()
	for name, content := range overrides {
		if content == "" {
			delete(files, name)
			continue
		}
		files[name] = content
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}
	return dir
}

func ptr(v float64) *float64 { return &v }

// Raw returns the fixture as already-parsed raw datasets.
func Raw() *source.RawDatasets {
	return &source.RawDatasets{
		Patients: []source.RawPatient{
			{ID: "P001", Name: "John Smith", Age: "45", Gender: "Male", HeightCM: "175", WeightKG: "82", BMI: "26.8"},
			{ID: "P002", Name: "Maria Garcia", Age: "52", Gender: "Female", HeightCM: "162", WeightKG: "70.5", BMI: "26.9"},
		},
		Labs: []source.RawLab{
			{Row: 1, PatientID: "P001", Date: "2024-01-15", TestName: "Glucose", Value: "105", Unit: "mg/dL"},
			{Row: 2, PatientID: "P001", Date: "2024-03-15", TestName: "Glucose", Value: "92", Unit: "mg/dL"},
			{Row: 3, PatientID: "P001", Date: "2024-03-15", TestName: "LDL Cholesterol", Value: "160", Unit: "mg/dL"},
			{Row: 4, PatientID: "P002", Date: "2024-02-01", TestName: "Creatinine", Value: "1.0", Unit: "mg/dL"},
			{Row: 5, PatientID: "P002", Date: "2024-02-01", TestName: "Potassium", Value: "pending", Unit: "mmol/L"},
		},
		Medications: []source.RawMedication{
			{Row: 1, PatientID: "P001", Name: "Metformin", Dose: "500mg", Frequency: "twice daily", StartDate: "2023-06-01", Reason: "Type 2 diabetes"},
			{Row: 2, PatientID: "P001", Name: "Atorvastatin", Dose: "20mg", Frequency: "once daily", StartDate: "2023-09-10", Reason: "High cholesterol"},
			{Row: 3, PatientID: "P002", Name: "Lisinopril", Dose: "10mg", Frequency: "once daily", StartDate: "2022-11-20", Reason: "Hypertension"},
		},
		Knowledge: []source.RawKnowledge{
			{Name: "Atorvastatin", Purpose: "Cholesterol reduction", SideEffects: []string{"Muscle pain"}, Monitoring: []string{"LDL Cholesterol", "ALT"}},
			{Name: "Metformin", Purpose: "Blood sugar control", SideEffects: []string{"Nausea", "Diarrhea"}, Monitoring: []string{"Glucose", "HbA1c"}},
		},
		Ranges: []source.RawRange{
			{TestName: "Glucose", Low: ptr(70), High: ptr(99)},
			{TestName: "LDL Cholesterol", High: ptr(130)},
			{TestName: "Creatinine", Low: ptr(0.6), High: ptr(1.2)},
			{TestName: "ALT", Low: ptr(7), High: ptr(56)},
		},
		BodyMap: []source.RawBodySystem{
			{Name: "Cardiovascular", Color: "#e53935", LabelIDs: []string{"heart"}, Tests: []string{"LDL Cholesterol"}},
			{Name: "Endocrine", Color: "#8e24aa", LabelIDs: []string{"pancreas"}, Tests: []string{"Glucose", "HbA1c"}},
			{Name: "Hepatic", Color: "#fb8c00", LabelIDs: []string{"liver"}, Tests: []string{"ALT"}},
			{Name: "Renal", Color: "#1e88e5", LabelIDs: []string{"kidney"}, Tests: []string{"Creatinine"}},
		},
		Graphics: map[domain.GraphicGender]string{
			domain.GraphicMale:   MaleSVG,
			domain.GraphicFemale: FemaleSVG,
		},
	}
}
