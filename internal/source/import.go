package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/visual-health-insight/internal/domain"
)

// Import replaces the contents of the dataset tables with raw. The tables must already exist
// (see MigrateUp). It is the only write path and runs in a single transaction.
func Import(ctx context.Context, db *sql.DB, dialect Dialect, raw *RawDatasets) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"patients", "lab_results", "medications", "medication_knowledge", "reference_ranges", "body_systems", "anatomy_graphics"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	insert := func(table string, columns []string, args ...interface{}) error {
		marks := make([]string, len(columns))
		for i := range columns {
			marks[i] = dialect.Placeholder(i + 1)
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(marks, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		return nil
	}

	for _, p := range raw.Patients {
		if err := insert("patients", []string{"id", "name", "age", "gender", "height_cm", "weight_kg", "bmi"},
			p.ID, p.Name, integerArg(p.Age), p.Gender, numberArg(p.HeightCM), numberArg(p.WeightKG), numberArg(p.BMI)); err != nil {
			return err
		}
	}
	for _, l := range raw.Labs {
		if err := insert("lab_results", []string{"patient_id", "test_date", "test_name", "test_value", "unit"},
			l.PatientID, l.Date, l.TestName, l.Value, l.Unit); err != nil {
			return err
		}
	}
	for _, m := range raw.Medications {
		if err := insert("medications", []string{"patient_id", "medication_name", "dose", "frequency", "start_date", "reason"},
			m.PatientID, m.Name, m.Dose, m.Frequency, m.StartDate, m.Reason); err != nil {
			return err
		}
	}
	for _, k := range raw.Knowledge {
		if err := insert("medication_knowledge", []string{"name", "purpose", "common_side_effects", "monitoring_required"},
			k.Name, k.Purpose, encodeStringList(k.SideEffects), encodeStringList(k.Monitoring)); err != nil {
			return err
		}
	}
	for _, r := range raw.Ranges {
		if err := insert("reference_ranges", []string{"test_name", "low", "high"}, r.TestName, floatArg(r.Low), floatArg(r.High)); err != nil {
			return err
		}
	}
	for _, b := range raw.BodyMap {
		if err := insert("body_systems", []string{"name", "color", "svg_ids", "tests"},
			b.Name, b.Color, encodeStringList(b.LabelIDs), encodeStringList(b.Tests)); err != nil {
			return err
		}
	}
	for _, g := range []domain.GraphicGender{domain.GraphicMale, domain.GraphicFemale} {
		if markup, ok := raw.Graphics[g]; ok {
			if err := insert("anatomy_graphics", []string{"gender", "markup"}, string(g), markup); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

func numberArg(s string) interface{} {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return v
}

func integerArg(s string) interface{} {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return int64(v)
}

func floatArg(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func encodeStringList(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}
