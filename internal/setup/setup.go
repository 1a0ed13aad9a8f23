// Package setup wires configuration, dataset sources, the record store and the report
// service into a ready-to-serve application.
package setup

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/visual-health-insight/internal/cache"
	"github.com/visual-health-insight/internal/domain"
	"github.com/visual-health-insight/internal/metrics"
	"github.com/visual-health-insight/internal/service"
	"github.com/visual-health-insight/internal/source"
	"github.com/visual-health-insight/internal/store"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "health_insight"

// App holds the loaded records and the services built on them.
type App struct {
	Config  *domain.Config
	Records *store.Store
	Reports *service.ReportService
	Metrics *metrics.Metrics
	Logger  *logrus.Logger

	redis *redis.Client
}

// Close releases connections held by the application.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// OpenSource returns the dataset source selected by cfg and a function releasing it.
func OpenSource(ctx context.Context, cfg domain.DataConfig, logger *logrus.Logger) (source.Source, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Source {
	case domain.SourceFiles, "":
		if cfg.S3.Bucket != "" {
			fetcher, err := source.NewS3Fetcher(ctx, cfg.S3, logger)
			if err != nil {
				return nil, nil, err
			}
			return source.NewFileSource(fetcher, cfg.Files, logger), noop, nil
		}
		return source.NewFileSource(source.NewDirFetcher(cfg.Dir), cfg.Files, logger), noop, nil

	case domain.SourceSQLite:
		src, err := source.NewSQLiteSource(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil

	case domain.SourcePostgres:
		src, err := source.NewPostgresSource(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported data source %q", cfg.Source)
	}
}

// Bootstrap loads every dataset and builds the report service. Loading is bounded by the
// configured load timeout.
func Bootstrap(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger) (*App, error) {
	cfg := configManager.GetConfig()

	loadCtx, cancel := context.WithTimeout(ctx, cfg.Data.LoadTimeout)
	defer cancel()

	src, closeSource, err := OpenSource(loadCtx, cfg.Data, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := closeSource(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to close dataset source")
		}
	}()

	m := metrics.New(MetricsNamespace)

	start := time.Now()
	records, err := store.Load(loadCtx, src, logger)
	if err != nil {
		return nil, err
	}
	m.DatasetLoadDuration.Observe(time.Since(start).Seconds())
	recordStats(m, records.Stats())

	redisClient := connectRedis(ctx, cfg.Cache, logger)
	reportCache, err := cache.New(cache.Config{
		MaxItems:    cfg.Cache.MaxItems,
		RedisClient: redisClient,
		TTL:         cfg.Cache.TTL,
		KeyPrefix:   cfg.Cache.KeyPrefix,
	}, logger)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}
	reports := service.NewReportService(records, reportCache, m, logger)

	logger.WithFields(logrus.Fields{
		"source":   src.Describe(),
		"patients": records.Stats().Patients,
		"duration": time.Since(start),
	}).Info("Application ready")

	return &App{
		Config:  cfg,
		Records: records,
		Reports: reports,
		Metrics: m,
		Logger:  logger,
		redis:   redisClient,
	}, nil
}

// connectRedis returns a client for the shared report tier, or nil when Redis is not
// configured or unreachable. Reports are then cached in memory only.
func connectRedis(ctx context.Context, cfg domain.CacheConfig, logger *logrus.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Warn("Invalid Redis URL, using in-memory report cache only")
		return nil
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("Redis unavailable, using in-memory report cache only")
		_ = client.Close()
		return nil
	}

	logger.WithField("addr", opts.Addr).Info("Connected report cache to Redis")
	return client
}

func recordStats(m *metrics.Metrics, stats store.Stats) {
	m.RecordsLoaded.WithLabelValues(source.DatasetPatients).Set(float64(stats.Patients))
	m.RecordsLoaded.WithLabelValues(source.DatasetLabs).Set(float64(stats.LabObservations))
	m.RecordsLoaded.WithLabelValues(source.DatasetMedications).Set(float64(stats.Medications))
	m.RecordsLoaded.WithLabelValues(source.DatasetMedicationKnowledge).Set(float64(stats.Knowledge))
	m.RecordsLoaded.WithLabelValues(source.DatasetReferenceRanges).Set(float64(stats.ReferenceRanges))
	m.RecordsLoaded.WithLabelValues(source.DatasetBodyMap).Set(float64(stats.BodySystems))
}

// ImportFiles copies the file datasets in dir into a SQLite database at dbPath, creating the
// database when needed.
func ImportFiles(ctx context.Context, dir string, files domain.DataFilesConfig, dbPath string, logger *logrus.Logger) error {
	raw, err := source.NewFileSource(source.NewDirFetcher(dir), files, logger).Load(ctx)
	if err != nil {
		return err
	}
	// Validate before writing anything.
	if _, err := store.New(raw, logger); err != nil {
		return err
	}

	dbPath = filepath.Clean(dbPath)
	if err := source.MigrateUp(source.SQLite, dbPath, logger); err != nil {
		return err
	}

	db, err := source.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := source.Import(ctx, db, source.SQLite, raw); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"dir":      dir,
		"database": dbPath,
		"patients": len(raw.Patients),
	}).Info("Imported datasets")
	return nil
}
