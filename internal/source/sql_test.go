package source_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/visual-health-insight/internal/domain"
	"github.com/visual-health-insight/internal/source"
	"github.com/visual-health-insight/internal/source/sourcetest"
)

func createTestDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "health.db")

	require.NoError(t, source.MigrateUp(source.SQLite, path, quietLogger()))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, source.Import(context.Background(), db, source.SQLite, sourcetest.Raw()))
	return path
}

func TestSQLiteSource_Load(t *testing.T) {
	ctx := context.Background()
	path := createTestDatabase(t)

	src, err := source.NewSQLiteSource(ctx, path, quietLogger())
	require.NoError(t, err)
	defer src.Close()

	raw, err := src.Load(ctx)
	require.NoError(t, err)

	expected := sourcetest.Raw()
	assert.Equal(t, expected.Patients, raw.Patients)
	assert.Equal(t, expected.Labs, raw.Labs)
	assert.Equal(t, expected.Medications, raw.Medications)
	assert.Equal(t, expected.Knowledge, raw.Knowledge)
	assert.Equal(t, expected.Ranges, raw.Ranges)
	assert.Equal(t, expected.BodyMap, raw.BodyMap)
	assert.Equal(t, expected.Graphics, raw.Graphics)
	assert.Equal(t, "sqlite:"+path, src.Describe())
}

func TestSQLiteSource_ImportReplacesContents(t *testing.T) {
	ctx := context.Background()
	path := createTestDatabase(t)

	src, err := source.NewSQLiteSource(ctx, path, quietLogger())
	require.NoError(t, err)
	defer src.Close()

	smaller := sourcetest.Raw()
	smaller.Labs = smaller.Labs[:1]
	delete(smaller.Graphics, domain.GraphicMale)
	require.NoError(t, source.Import(ctx, src.DB(), src.Dialect(), smaller))

	raw, err := src.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, raw.Labs, 1)
	assert.Len(t, raw.Graphics, 1)
}

func TestMigrateUp_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health.db")
	logger, hook := test.NewNullLogger()

	require.NoError(t, source.MigrateUp(source.SQLite, path, logger))
	require.NoError(t, source.MigrateUp(source.SQLite, path, logger), "second run is a no-op")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var version int
	var dirty bool
	require.NoError(t, db.QueryRow("SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty))
	assert.Equal(t, 1, version)
	assert.False(t, dirty)

	for _, table := range []string{"patients", "lab_results", "medications", "medication_knowledge", "reference_ranges", "body_systems", "anatomy_graphics"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}

	var migrated int
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Dataset schema migrated" {
			migrated++
		}
	}
	assert.Equal(t, 1, migrated)
}

func TestImport_WithoutSchemaFails(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "bare.db"))
	require.NoError(t, err)
	defer db.Close()

	err = source.Import(context.Background(), db, source.SQLite, sourcetest.Raw())
	assert.Error(t, err)
}

func TestNewSQLiteSource_MissingFile(t *testing.T) {
	_, err := source.NewSQLiteSource(context.Background(), filepath.Join(t.TempDir(), "absent.db"), quietLogger())
	assert.ErrorIs(t, err, domain.ErrDatasetMissing)
}

func TestSQLSource_QueryFailureIsMissingDataset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM patients")).
		WillReturnError(fmt.Errorf("no such table: patients"))

	_, err = source.NewSQLSource(db, source.SQLite, "mock", quietLogger()).Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDatasetMissing)
	assert.Contains(t, err.Error(), source.DatasetPatients)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSource_InvalidListColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM patients")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age", "gender", "height_cm", "weight_kg", "bmi"}).
			AddRow("P001", "John Smith", int64(45), "Male", 175.0, nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM lab_results")).
		WillReturnRows(sqlmock.NewRows([]string{"patient_id", "test_date", "test_name", "test_value", "unit"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM medications")).
		WillReturnRows(sqlmock.NewRows([]string{"patient_id", "medication_name", "dose", "frequency", "start_date", "reason"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM medication_knowledge")).
		WillReturnRows(sqlmock.NewRows([]string{"name", "purpose", "common_side_effects", "monitoring_required"}).
			AddRow("Metformin", "Sugar", "[\"Nausea\"]", "Glucose"))

	_, err = source.NewSQLSource(db, source.SQLite, "mock", quietLogger()).Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDatasetInvalid)
	assert.Contains(t, err.Error(), "monitoring_required")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSource_FailureAfterPatients(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM patients")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age", "gender", "height_cm", "weight_kg", "bmi"}).
			AddRow("P001", "John Smith", int64(45), "Male", 175.5, nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM lab_results")).WillReturnError(sql.ErrConnDone)

	_, err = source.NewSQLSource(db, source.SQLite, "mock", quietLogger()).Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDatasetMissing)
	assert.Contains(t, err.Error(), source.DatasetLabs)
}

func TestPostgresSource_Load(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("health"),
		postgres.WithUsername("health"),
		postgres.WithPassword("health-test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, source.MigrateUp(source.Postgres, url, quietLogger()))

	src, err := source.NewPostgresSource(ctx, url, quietLogger())
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, source.Import(ctx, src.DB(), source.Postgres, sourcetest.Raw()))

	raw, err := src.Load(ctx)
	require.NoError(t, err)

	expected := sourcetest.Raw()
	assert.Equal(t, expected.Patients, raw.Patients)
	assert.Equal(t, expected.Labs, raw.Labs)
	assert.Equal(t, expected.Ranges, raw.Ranges)
	assert.Equal(t, expected.BodyMap, raw.BodyMap)
	assert.Equal(t, expected.Graphics, raw.Graphics)
}
