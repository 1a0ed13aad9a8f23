package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/visual-health-insight/internal/domain"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	Driver string
	// Migrations names the embedded migration directory for this backend.
	Migrations string
	// MigrateURL turns a database path or connection URL into a migrate database URL.
	MigrateURL func(dsn string) string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// Supported dialects.
var (
	SQLite = Dialect{
		Driver:      "sqlite",
		Migrations:  "migrations/sqlite",
		MigrateURL:  func(dsn string) string { return "sqlite://" + dsn },
		Placeholder: func(int) string { return "?" },
	}
	Postgres = Dialect{
		Driver:      "postgres",
		Migrations:  "migrations/postgres",
		MigrateURL:  func(dsn string) string { return dsn },
		Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

// SQLSource loads the datasets from database tables. It never writes.
type SQLSource struct {
	db       *sql.DB
	dialect  Dialect
	describe string
	logger   *logrus.Logger
}

// NewSQLSource wraps an open database handle.
func NewSQLSource(db *sql.DB, dialect Dialect, describe string, logger *logrus.Logger) *SQLSource {
	return &SQLSource{db: db, dialect: dialect, describe: describe, logger: logger}
}

// NewSQLiteSource opens an existing SQLite database file.
func NewSQLiteSource(ctx context.Context, path string, logger *logrus.Logger) (*SQLSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, domain.NewDatasetMissingError("sqlite database", err)
	}
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLSource(db, SQLite, "sqlite:"+path, logger), nil
}

// OpenSQLite opens a SQLite database file, creating it on first write.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open(SQLite.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewPostgresSource connects to PostgreSQL using a connection URL.
func NewPostgresSource(ctx context.Context, databaseURL string, logger *logrus.Logger) (*SQLSource, error) {
	db, err := sql.Open(Postgres.Driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLSource(db, Postgres, "postgres", logger), nil
}

// DB exposes the underlying handle, e.g. for importing datasets.
func (s *SQLSource) DB() *sql.DB {
	return s.db
}

// Dialect returns the backend dialect.
func (s *SQLSource) Dialect() Dialect {
	return s.dialect
}

// Describe identifies the database in logs.
func (s *SQLSource) Describe() string {
	return s.describe
}

// Close closes the database connection.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// Load reads every dataset table. A table that cannot be queried is reported as a missing
// dataset.
func (s *SQLSource) Load(ctx context.Context) (*RawDatasets, error) {
	raw := newRawDatasets()

	loaders := []struct {
		dataset string
		load    func(context.Context, *RawDatasets) error
	}{
		{DatasetPatients, s.loadPatients},
		{DatasetLabs, s.loadLabs},
		{DatasetMedications, s.loadMedications},
		{DatasetMedicationKnowledge, s.loadKnowledge},
		{DatasetReferenceRanges, s.loadRanges},
		{DatasetBodyMap, s.loadBodyMap},
		{DatasetGraphics, s.loadGraphics},
	}
	for _, l := range loaders {
		if err := l.load(ctx, raw); err != nil {
			if _, ok := err.(*domain.DatasetError); ok {
				return nil, err
			}
			return nil, domain.NewDatasetMissingError(l.dataset, err)
		}
	}

	if len(raw.Graphics) == 0 {
		return nil, domain.NewDatasetMissingError(DatasetGraphics, fmt.Errorf("no rows in anatomy_graphics"))
	}

	s.logger.WithFields(logrus.Fields{
		"source":   s.describe,
		"patients": len(raw.Patients),
		"labs":     len(raw.Labs),
	}).Debug("Datasets read from database")

	return raw, nil
}

func (s *SQLSource) loadPatients(ctx context.Context, raw *RawDatasets) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, age, gender, height_cm, weight_kg, bmi
		FROM patients
		ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, age, gender, height, weight, bmi sql.NullString
		if err := rows.Scan(&id, &name, &age, &gender, &height, &weight, &bmi); err != nil {
			return fmt.Errorf("failed to scan patient: %w", err)
		}
		raw.Patients = append(raw.Patients, RawPatient{
			ID:       id.String,
			Name:     name.String,
			Age:      age.String,
			Gender:   gender.String,
			HeightCM: height.String,
			WeightKG: weight.String,
			BMI:      bmi.String,
		})
	}
	return rows.Err()
}

func (s *SQLSource) loadLabs(ctx context.Context, raw *RawDatasets) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT patient_id, test_date, test_name, test_value, unit
		FROM lab_results
		ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to query lab results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var patientID, date, name, value, unit sql.NullString
		if err := rows.Scan(&patientID, &date, &name, &value, &unit); err != nil {
			return fmt.Errorf("failed to scan lab result: %w", err)
		}
		raw.Labs = append(raw.Labs, RawLab{
			Row:       len(raw.Labs) + 1,
			PatientID: patientID.String,
			Date:      date.String,
			TestName:  name.String,
			Value:     value.String,
			Unit:      unit.String,
		})
	}
	return rows.Err()
}

func (s *SQLSource) loadMedications(ctx context.Context, raw *RawDatasets) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT patient_id, medication_name, dose, frequency, start_date, reason
		FROM medications
		ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to query medications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var patientID, name, dose, frequency, start, reason sql.NullString
		if err := rows.Scan(&patientID, &name, &dose, &frequency, &start, &reason); err != nil {
			return fmt.Errorf("failed to scan medication: %w", err)
		}
		raw.Medications = append(raw.Medications, RawMedication{
			Row:       len(raw.Medications) + 1,
			PatientID: patientID.String,
			Name:      name.String,
			Dose:      dose.String,
			Frequency: frequency.String,
			StartDate: start.String,
			Reason:    reason.String,
		})
	}
	return rows.Err()
}

func (s *SQLSource) loadKnowledge(ctx context.Context, raw *RawDatasets) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, purpose, common_side_effects, monitoring_required
		FROM medication_knowledge
		ORDER BY name
	`)
	if err != nil {
		return fmt.Errorf("failed to query medication knowledge: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, purpose, sideEffects, monitoring sql.NullString
		if err := rows.Scan(&name, &purpose, &sideEffects, &monitoring); err != nil {
			return fmt.Errorf("failed to scan medication knowledge: %w", err)
		}
		entry := RawKnowledge{Name: name.String, Purpose: purpose.String}
		if entry.SideEffects, err = decodeStringList(sideEffects); err != nil {
			return domain.NewDatasetInvalidError(DatasetMedicationKnowledge, fmt.Sprintf("%s: common_side_effects", entry.Name), err)
		}
		if entry.Monitoring, err = decodeStringList(monitoring); err != nil {
			return domain.NewDatasetInvalidError(DatasetMedicationKnowledge, fmt.Sprintf("%s: monitoring_required", entry.Name), err)
		}
		raw.Knowledge = append(raw.Knowledge, entry)
	}
	return rows.Err()
}

func (s *SQLSource) loadRanges(ctx context.Context, raw *RawDatasets) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT test_name, low, high
		FROM reference_ranges
		ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to query reference ranges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name sql.NullString
		var low, high sql.NullFloat64
		if err := rows.Scan(&name, &low, &high); err != nil {
			return fmt.Errorf("failed to scan reference range: %w", err)
		}
		entry := RawRange{TestName: name.String}
		if low.Valid {
			entry.Low = &low.Float64
		}
		if high.Valid {
			entry.High = &high.Float64
		}
		raw.Ranges = append(raw.Ranges, entry)
	}
	return rows.Err()
}

func (s *SQLSource) loadBodyMap(ctx context.Context, raw *RawDatasets) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, color, svg_ids, tests
		FROM body_systems
		ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to query body systems: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, color, ids, tests sql.NullString
		if err := rows.Scan(&name, &color, &ids, &tests); err != nil {
			return fmt.Errorf("failed to scan body system: %w", err)
		}
		entry := RawBodySystem{Name: name.String, Color: color.String}
		if entry.LabelIDs, err = decodeStringList(ids); err != nil {
			return domain.NewDatasetInvalidError(DatasetBodyMap, fmt.Sprintf("%s: svg_ids", entry.Name), err)
		}
		if entry.Tests, err = decodeStringList(tests); err != nil {
			return domain.NewDatasetInvalidError(DatasetBodyMap, fmt.Sprintf("%s: tests", entry.Name), err)
		}
		raw.BodyMap = append(raw.BodyMap, entry)
	}
	return rows.Err()
}

func (s *SQLSource) loadGraphics(ctx context.Context, raw *RawDatasets) error {
	rows, err := s.db.QueryContext(ctx, `SELECT gender, markup FROM anatomy_graphics`)
	if err != nil {
		return fmt.Errorf("failed to query anatomy graphics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var gender, markup sql.NullString
		if err := rows.Scan(&gender, &markup); err != nil {
			return fmt.Errorf("failed to scan anatomy graphic: %w", err)
		}
		g, ok := domain.GraphicGenderFor(gender.String)
		if !ok || markup.String == "" {
			s.logger.WithField("gender", gender.String).Warn("Ignoring anatomy graphic row")
			continue
		}
		raw.Graphics[g] = markup.String
	}
	return rows.Err()
}

// decodeStringList decodes a JSON array column; NULL and empty text are an empty list.
func decodeStringList(v sql.NullString) ([]string, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}
