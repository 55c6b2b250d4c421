package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"golmer/adapters/tabular"
	"golmer/app"
	"golmer/domain/core"
	"golmer/domain/fit"
	"golmer/domain/formula"
	"golmer/internal"
	"golmer/ports"
)

// Server exposes screen submission and retrieval as a JSON API
type Server struct {
	router  *gin.Engine
	screens *app.ScreenService
	reader  ports.ScreenReaderPort
	logger  *internal.Logger
}

// NewServer wires the API routes. The reader may be nil when no ledger is
// configured; lookup endpoints then answer 503.
func NewServer(screens *app.ScreenService, reader ports.ScreenReaderPort) *Server {
	s := &Server{
		router:  gin.Default(),
		screens: screens,
		reader:  reader,
		logger:  internal.DefaultLogger.Component("API"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.POST("/api/screens", s.handleSubmitScreen)
	s.router.GET("/api/screens", s.handleListScreens)
	s.router.GET("/api/screens/:id", s.handleGetScreen)
}

// Start runs the HTTP server on the given address
func (s *Server) Start(addr string) error {
	s.logger.Info("listening on %s", addr)
	return s.router.Run(addr)
}

// Router exposes the handler, mainly for httptest
func (s *Server) Router() http.Handler {
	return s.router
}

// DataRef points at the dataset to screen: a local file or a JSON endpoint.
// Exactly one of path and url must be set.
type DataRef struct {
	Path        string   `json:"path"`
	Format      string   `json:"format"`
	Delimiter   string   `json:"delimiter"`
	URL         string   `json:"url"`
	RecordsPath string   `json:"records_path"`
	ForceFactor []string `json:"force_factor"`
}

// ScreenSubmission is the POST /api/screens request body
type ScreenSubmission struct {
	Data       DataRef  `json:"data"`
	Response   string   `json:"response" binding:"required"`
	Groups     []string `json:"groups"`
	Predictors []string `json:"predictors" binding:"required"`
	Criterion  string   `json:"criterion"`
	Persist    bool     `json:"persist"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSubmitScreen(c *gin.Context) {
	var req ScreenSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request data: %v", err)})
		return
	}

	source, err := buildSource(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tbl, err := source.Load(c.Request.Context())
	if err != nil {
		s.logger.Warn("dataset load failed: %v", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("Failed to load dataset: %v", err)})
		return
	}

	baseline, err := buildBaseline(req.Response, req.Groups)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	criterion := fit.Criterion(strings.ToUpper(req.Criterion))
	if req.Criterion != "" && !criterion.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown criterion %q", req.Criterion)})
		return
	}

	report, err := s.screens.Screen(c.Request.Context(), app.ScreenRequest{
		Table:      tbl,
		Baseline:   baseline,
		Predictors: req.Predictors,
		Config:     fit.Config{Criterion: criterion},
		Persist:    req.Persist,
	})
	if err != nil {
		s.logger.Warn("screen failed: %v", err)
		c.JSON(screenErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, report)
}

func (s *Server) handleGetScreen(c *gin.Context) {
	if s.reader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No ledger configured"})
		return
	}

	id, err := core.ParseScreenID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := s.reader.GetReport(c.Request.Context(), id)
	if err != nil {
		if core.IsNotFoundError(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Screen %s not found", id)})
			return
		}
		s.logger.Error("loading screen %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load screen"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleListScreens(c *gin.Context) {
	if s.reader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No ledger configured"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 200 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	manifests, err := s.reader.ListManifests(c.Request.Context(), limit, offset)
	if err != nil {
		s.logger.Error("listing screens: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list screens"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"manifests": manifests,
		"count":     len(manifests),
	})
}

// buildSource maps a data reference onto a file or HTTP table source
func buildSource(ref DataRef) (ports.TableSourcePort, error) {
	delimiter, err := tabular.ParseDelimiter(ref.Delimiter)
	if err != nil {
		return nil, err
	}
	opts := tabular.Options{ForceFactor: ref.ForceFactor, Delimiter: delimiter}
	switch {
	case ref.Path != "" && ref.URL != "":
		return nil, fmt.Errorf("data.path and data.url are mutually exclusive")
	case ref.Path != "":
		if ref.Format != "" {
			return tabular.NewFileSourceWithFormat(ref.Path, ref.Format, opts), nil
		}
		return tabular.NewFileSource(ref.Path, opts), nil
	case ref.URL != "":
		return tabular.NewHTTPSource(tabular.HTTPSourceConfig{
			URL:         ref.URL,
			RecordsPath: ref.RecordsPath,
		}, opts), nil
	default:
		return nil, fmt.Errorf("data.path or data.url is required")
	}
}

// buildBaseline assembles the intercept-only baseline with one random
// intercept per grouping factor. No groups means a plain regression baseline.
func buildBaseline(response string, groups []string) (formula.Formula, error) {
	f, err := formula.New(response)
	if err != nil {
		return formula.Formula{}, err
	}
	for _, g := range groups {
		f = f.WithRandomIntercept(g)
	}
	if err := f.Validate(); err != nil {
		return formula.Formula{}, fmt.Errorf("baseline formula: %w", err)
	}
	return f, nil
}

// screenErrorStatus separates data problems the caller can fix from
// internal failures
func screenErrorStatus(err error) int {
	if core.IsNotFoundError(err) || core.IsDataError(err) || core.IsFitError(err) || core.IsComparisonError(err) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
