package source

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Column layouts of the two tabular datasets.
var (
	labColumns        = []string{"patient_id", "test_date", "test_name", "test_value", "unit"}
	medicationColumns = []string{"patient_id", "medication_name", "dose", "frequency", "start_date", "reason"}
)

type patientDocument struct {
	Patients map[string]patientEntry `json:"patients"`
}

type patientEntry struct {
	Name        string `json:"name"`
	GeneralInfo struct {
		Age      json.RawMessage `json:"age"`
		Gender   string          `json:"gender"`
		HeightCM json.RawMessage `json:"height_cm"`
		WeightKG json.RawMessage `json:"weight_kg"`
		BMI      json.RawMessage `json:"bmi"`
	} `json:"general_info"`
}

func parsePatients(data []byte) ([]RawPatient, error) {
	var doc patientDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if doc.Patients == nil {
		return nil, fmt.Errorf("missing \"patients\" object")
	}

	out := make([]RawPatient, 0, len(doc.Patients))
	for id, p := range doc.Patients {
		out = append(out, RawPatient{
			ID:       id,
			Name:     p.Name,
			Age:      scalarText(p.GeneralInfo.Age),
			Gender:   p.GeneralInfo.Gender,
			HeightCM: scalarText(p.GeneralInfo.HeightCM),
			WeightKG: scalarText(p.GeneralInfo.WeightKG),
			BMI:      scalarText(p.GeneralInfo.BMI),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// scalarText renders a JSON number or string as text; null and absent become "".
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func parseLabs(data []byte) ([]RawLab, error) {
	rows, err := readCSV(data, labColumns)
	if err != nil {
		return nil, err
	}
	out := make([]RawLab, 0, len(rows))
	for i, r := range rows {
		out = append(out, RawLab{
			Row:       i + 1,
			PatientID: r["patient_id"],
			Date:      r["test_date"],
			TestName:  r["test_name"],
			Value:     r["test_value"],
			Unit:      r["unit"],
		})
	}
	return out, nil
}

func parseMedications(data []byte) ([]RawMedication, error) {
	rows, err := readCSV(data, medicationColumns)
	if err != nil {
		return nil, err
	}
	out := make([]RawMedication, 0, len(rows))
	for i, r := range rows {
		out = append(out, RawMedication{
			Row:       i + 1,
			PatientID: r["patient_id"],
			Name:      r["medication_name"],
			Dose:      r["dose"],
			Frequency: r["frequency"],
			StartDate: r["start_date"],
			Reason:    r["reason"],
		})
	}
	return out, nil
}

// readCSV reads a headered CSV into column-keyed rows. Every required column must be present
// in the header; short rows leave trailing columns empty.
func readCSV(data []byte, required []string) ([]map[string]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("invalid CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV: %w", err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		row := make(map[string]string, len(required))
		for _, col := range required {
			if i := index[col]; i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type knowledgeEntry struct {
	Purpose     string   `json:"purpose"`
	SideEffects []string `json:"common_side_effects"`
	Monitoring  []string `json:"monitoring_required"`
}

// parseKnowledge accepts both a bare name-keyed object and one wrapped in "medications".
func parseKnowledge(data []byte) ([]RawKnowledge, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if wrapped, ok := top["medications"]; ok && len(top) == 1 {
		top = nil
		if err := json.Unmarshal(wrapped, &top); err != nil {
			return nil, fmt.Errorf("invalid \"medications\" object: %w", err)
		}
	}

	out := make([]RawKnowledge, 0, len(top))
	for name, raw := range top {
		var entry knowledgeEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("medication %q: %w", name, err)
		}
		out = append(out, RawKnowledge{
			Name:        name,
			Purpose:     entry.Purpose,
			SideEffects: entry.SideEffects,
			Monitoring:  entry.Monitoring,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type rangeEntry struct {
	Low  *float64 `json:"low"`
	High *float64 `json:"high"`
}

func parseRanges(data []byte) ([]RawRange, error) {
	members, err := decodeOrderedObject(data)
	if err != nil {
		return nil, err
	}
	out := make([]RawRange, 0, len(members))
	for _, m := range members {
		var entry rangeEntry
		if err := json.Unmarshal(m.Value, &entry); err != nil {
			return nil, fmt.Errorf("test %q: %w", m.Key, err)
		}
		out = append(out, RawRange{TestName: m.Key, Low: entry.Low, High: entry.High})
	}
	return out, nil
}

type bodySystemEntry struct {
	Color  string   `json:"color"`
	SvgIDs []string `json:"svg_ids"`
	Tests  []string `json:"tests"`
}

func parseBodyMap(data []byte) ([]RawBodySystem, error) {
	members, err := decodeOrderedObject(data)
	if err != nil {
		return nil, err
	}
	out := make([]RawBodySystem, 0, len(members))
	for _, m := range members {
		var entry bodySystemEntry
		if err := json.Unmarshal(m.Value, &entry); err != nil {
			return nil, fmt.Errorf("system %q: %w", m.Key, err)
		}
		out = append(out, RawBodySystem{Name: m.Key, Color: entry.Color, LabelIDs: entry.SvgIDs, Tests: entry.Tests})
	}
	return out, nil
}

type objectMember struct {
	Key   string
	Value json.RawMessage
}

// decodeOrderedObject decodes a top-level JSON object keeping member order.
func decodeOrderedObject(data []byte) ([]objectMember, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	var members []objectMember
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key")
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", key, err)
		}
		members = append(members, objectMember{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return members, nil
}
