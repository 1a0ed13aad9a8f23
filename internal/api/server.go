package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/visual-health-insight/internal/cache"
	"github.com/visual-health-insight/internal/domain"
	"github.com/visual-health-insight/internal/metrics"
	"github.com/visual-health-insight/internal/middleware"
	"github.com/visual-health-insight/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// DiagramWarningHeader carries a soft annotation failure alongside an SVG response.
const DiagramWarningHeader = "X-Diagram-Warning"

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	reports       *service.ReportService
	metrics       *metrics.Metrics
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, reports *service.ReportService, m *metrics.Metrics, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if configManager.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics(m))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.NewRateLimiterFromConfig(cfg.RateLimit).RateLimit())
	}

	server := &Server{
		configManager: configManager,
		reports:       reports,
		metrics:       m,
		logger:        logger,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/patients", s.handleListPatients)

		patient := v1.Group("/patients/:id", s.requirePatient)
		{
			patient.GET("", s.handleGetPatient)
			patient.GET("/summary", s.handleSummary)
			patient.GET("/medications", s.handleMedications)
			patient.GET("/adherence", s.handleAdherence)
			patient.GET("/labs", s.handleLabs)
			patient.GET("/labs/:test/trend", s.handleTrend)
			patient.GET("/timeline", s.handleTimeline)
			patient.GET("/systems", s.handleSystems)
			patient.GET("/diagram", s.handleDiagram)
			patient.GET("/report", s.handleReport)
		}
	}

	s.router.NoRoute(func(c *gin.Context) {
		s.writeError(c, http.StatusNotFound, domain.ErrCodeNotFound, "route not found", nil)
	})
}

// handleHealth handles health check requests. An unreachable Redis tier degrades the
// status but the service keeps answering from memory.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	redisState := s.reports.CacheStatus(ctx)
	if redisState == cache.RedisUnreachable {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"cache":       gin.H{"redis": redisState},
		"timestamp":   time.Now().UTC(),
		"version":     Version,
		"environment": s.configManager.GetConfig().Environment,
		"patients":    len(s.reports.Patients()),
	})
}

func (s *Server) handleListPatients(c *gin.Context) {
	patients := s.reports.Patients()
	c.JSON(http.StatusOK, gin.H{
		"patients": patients,
		"count":    len(patients),
	})
}

// requirePatient rejects requests for unregistered patient ids before any view is built.
func (s *Server) requirePatient(c *gin.Context) {
	if _, err := s.reports.Patient(c.Param("id")); err != nil {
		s.handleServiceError(c, err)
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) handleGetPatient(c *gin.Context) {
	patient, err := s.reports.Patient(c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (s *Server) handleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.reports.Views().SummaryFor(c.Param("id")))
}

func (s *Server) handleMedications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"medications": s.reports.Views().MedicationsFor(c.Param("id"))})
}

func (s *Server) handleAdherence(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"adherence": s.reports.Views().AdherenceFor(c.Param("id"))})
}

func (s *Server) handleLabs(c *gin.Context) {
	abnormal, err := boolQuery(c, "abnormal")
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	views := s.reports.Views()
	labs := views.LabsFor(c.Param("id"))
	if abnormal {
		labs = views.AbnormalLabsFor(c.Param("id"))
	}
	c.JSON(http.StatusOK, gin.H{"labs": labs, "count": len(labs)})
}

func (s *Server) handleTrend(c *gin.Context) {
	c.JSON(http.StatusOK, s.reports.Views().TrendFor(c.Param("id"), c.Param("test")))
}

func (s *Server) handleTimeline(c *gin.Context) {
	limit, err := limitQuery(c)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	events := s.reports.Views().TimelineFor(c.Param("id"))
	total := len(events)
	if limit > 0 && limit < total {
		events = events[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": total})
}

func (s *Server) handleSystems(c *gin.Context) {
	c.JSON(http.StatusOK, s.reports.Mapper().View(c.Param("id")))
}

func (s *Server) handleDiagram(c *gin.Context) {
	diagram, err := s.reports.Diagram(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	if !diagram.Available {
		s.writeError(c, http.StatusNotFound, domain.ErrCodeNotFound, diagram.Warning, nil)
		return
	}
	if diagram.Warning != "" {
		c.Header(DiagramWarningHeader, diagram.Warning)
	}
	c.Data(http.StatusOK, "image/svg+xml", []byte(diagram.Markup))
}

func (s *Server) handleReport(c *gin.Context) {
	report, err := s.reports.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func boolQuery(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.NewValidationError(name, "must be a boolean", raw)
	}
	return v, nil
}

func limitQuery(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError("limit", "must be a non-negative integer", raw)
	}
	return n, nil
}
