package ui

import (
	"bytes"
	"context"
	stderrors "errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"gosegment/domain/core"
	"gosegment/domain/segmentation"
	"gosegment/internal/dendrogram"
	"gosegment/internal/errors"
	"gosegment/internal/logging"
	"gosegment/internal/profile"
	segwiz "gosegment/internal/segmentation"
	"gosegment/ports"
	"gosegment/ui/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WizardService is what the HTTP layer needs from the wizard registry.
type WizardService interface {
	middleware.WizardLookup
	Open(ctx context.Context) (*segwiz.Wizard, error)
	Close(id core.WizardID) error
	Variables(ctx context.Context) ([]segmentation.Variable, error)
	Runs(ctx context.Context, limit int) ([]*ports.SegmentationRun, error)
	Run(ctx context.Context, id core.RunID) (*ports.SegmentationRun, error)
}

// Server is the JSON API over segmentation wizards.
type Server struct {
	router  *gin.Engine
	service WizardService
	logger  *zap.Logger
}

// NewServer creates the API server. mode is a gin mode; empty keeps the current one.
func NewServer(service WizardService, logger *zap.Logger, mode string) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}
	s := &Server{
		router:  gin.New(),
		service: service,
		logger:  logging.OrNop(logger).Named("http"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestLogger(s.logger))
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api")
	api.GET("/variables", s.handleVariables)
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)

	wizards := api.Group("/segmentation/wizards")
	wizards.POST("", s.handleOpen)

	w := wizards.Group("/:id", middleware.LoadWizard(s.service))
	w.GET("", s.handleView)
	w.DELETE("", s.handleClose)
	w.GET("/events", s.handleEvents)
	w.PUT("/inputs", s.handleInputs)
	w.PUT("/method", s.handleMethod)
	w.PUT("/detection", s.handleDetection)
	w.POST("/detection/select", s.handleSelectK)
	w.PUT("/execution", s.handleExecution)
	w.POST("/next", s.handleNext)
	w.POST("/back", s.handleBack)
	w.POST("/reset", s.handleReset)
	w.POST("/retry", s.handleRetry)
	w.POST("/cancel", s.handleCancel)
	w.GET("/dendrogram", s.handleDendrogram)
	w.GET("/profiles", s.handleProfiles)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleVariables(c *gin.Context) {
	vars, err := s.service.Variables(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variables": vars})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	runs, err := s.service.Runs(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		s.fail(c, errors.InvalidInput(err.Error()))
		return
	}
	run, err := s.service.Run(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleOpen(c *gin.Context) {
	w, err := s.service.Open(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, w.View())
}

func (s *Server) handleView(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.Wizard(c).View())
}

func (s *Server) handleClose(c *gin.Context) {
	if err := s.service.Close(middleware.Wizard(c).ID()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type inputsRequest struct {
	Variables []string `json:"variables"`
}

func (s *Server) handleInputs(c *gin.Context) {
	var req inputsRequest
	if !s.bind(c, &req) {
		return
	}
	w := middleware.Wizard(c)
	s.respond(c, w, w.SelectInputs(c.Request.Context(), req.Variables))
}

type methodRequest struct {
	Method      string `json:"method"`
	Linkage     string `json:"linkage"`
	Standardize *bool  `json:"standardize"`
}

func (s *Server) handleMethod(c *gin.Context) {
	var req methodRequest
	if !s.bind(c, &req) {
		return
	}
	w := middleware.Wizard(c)
	method, err := segmentation.ParseMethod(req.Method, req.Linkage)
	if err != nil {
		s.fail(c, errors.InvalidInput(err.Error()))
		return
	}
	standardize := w.State().Standardize
	if req.Standardize != nil {
		standardize = *req.Standardize
	}
	s.respond(c, w, w.ConfigureMethod(method, standardize))
}

type detectionRequest struct {
	Range       *segmentation.Range `json:"range"`
	AutoDetect  *bool               `json:"auto_detect"`
	ManualK     *int                `json:"manual_k"`
	ClearManual bool                `json:"clear_manual"`
}

func (s *Server) handleDetection(c *gin.Context) {
	var req detectionRequest
	if !s.bind(c, &req) {
		return
	}
	w := middleware.Wizard(c)
	s.respond(c, w, w.ConfigureDetection(c.Request.Context(), segwiz.DetectionChange{
		Range:       req.Range,
		AutoDetect:  req.AutoDetect,
		ManualK:     req.ManualK,
		ClearManual: req.ClearManual,
	}))
}

type selectRequest struct {
	K int `json:"k" binding:"required"`
}

func (s *Server) handleSelectK(c *gin.Context) {
	var req selectRequest
	if !s.bind(c, &req) {
		return
	}
	w := middleware.Wizard(c)
	s.respond(c, w, w.SelectDetectedK(req.K))
}

type executionRequest struct {
	Persist    bool   `json:"persist"`
	NamePrefix string `json:"name_prefix"`
}

func (s *Server) handleExecution(c *gin.Context) {
	var req executionRequest
	if !s.bind(c, &req) {
		return
	}
	w := middleware.Wizard(c)
	s.respond(c, w, w.SetExecutionOptions(req.Persist, req.NamePrefix))
}

func (s *Server) handleNext(c *gin.Context) {
	w := middleware.Wizard(c)
	s.respond(c, w, w.Next(c.Request.Context()))
}

// handleBack on the first step closes the wizard and removes it from the registry.
func (s *Server) handleBack(c *gin.Context) {
	w := middleware.Wizard(c)
	if err := w.Back(); err != nil {
		s.fail(c, err)
		return
	}
	view := w.View()
	if view.Closed {
		_ = s.service.Close(w.ID())
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleReset(c *gin.Context) {
	w := middleware.Wizard(c)
	s.respond(c, w, w.Reset())
}

func (s *Server) handleRetry(c *gin.Context) {
	w := middleware.Wizard(c)
	s.respond(c, w, w.Retry(c.Request.Context()))
}

func (s *Server) handleCancel(c *gin.Context) {
	w := middleware.Wizard(c)
	w.Cancel()
	s.respond(c, w, nil)
}

func (s *Server) handleDendrogram(c *gin.Context) {
	w := middleware.Wizard(c)
	result := w.State().Result
	if result == nil {
		s.fail(c, core.ErrNothingToRender)
		return
	}

	width := queryFloat(c, "width", dendrogram.DefaultWidth)
	height := queryFloat(c, "height", dendrogram.DefaultHeight)
	drawing, err := dendrogram.Build(result.Dendrogram, dendrogram.DefaultOptions(width, height))
	if err != nil {
		s.fail(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "svg":
		var buf bytes.Buffer
		if err := dendrogram.WriteSVG(&buf, drawing); err != nil {
			s.fail(c, err)
			return
		}
		c.Data(http.StatusOK, "image/svg+xml", buf.Bytes())
	case "json":
		c.JSON(http.StatusOK, drawing)
	default:
		s.fail(c, errors.InvalidInput("format must be json or svg"))
	}
}

func (s *Server) handleProfiles(c *gin.Context) {
	w := middleware.Wizard(c)
	result := w.State().Result
	if result == nil {
		s.fail(c, core.ErrNothingToRender)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, gin.H{
			"n_clusters":       result.NClusters,
			"total_classified": result.TotalClassified,
			"silhouette_score": result.Silhouette,
			"segment_ids":      result.SegmentIDs,
			"profiles":         profile.SummarizeAll(result),
		})
	case "markdown":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(profile.Markdown(result)))
	case "html":
		c.Data(http.StatusOK, "text/html; charset=utf-8", profile.HTML(profile.Markdown(result)))
	default:
		s.fail(c, errors.InvalidInput("format must be json, markdown or html"))
	}
}

// bind decodes the JSON body and reports failures itself.
func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		s.fail(c, errors.InvalidInput(err.Error()))
		return false
	}
	return true
}

// respond writes the wizard view, or the error when err is set.
func (s *Server) respond(c *gin.Context, w *segwiz.Wizard, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w.View())
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": codeOf(err, status)})
}

func codeOf(err error, status int) string {
	if errors.IsAppError(err) {
		return errors.GetCode(err)
	}
	switch status {
	case http.StatusConflict:
		return errors.CodeConflict
	case http.StatusNotFound:
		return errors.CodeNotFound
	case http.StatusUnprocessableEntity:
		return errors.CodeValidationError
	default:
		return errors.CodeInternalError
	}
}

func statusOf(err error) int {
	switch {
	case core.IsLifecycleError(err):
		return http.StatusConflict
	case stderrors.Is(err, core.ErrNothingToRender):
		return http.StatusNotFound
	case stderrors.Is(err, core.ErrInvalidPayload):
		return http.StatusUnprocessableEntity
	case errors.IsAppError(err):
		return errors.HTTPStatus(err)
	case core.IsNotFoundError(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func queryFloat(c *gin.Context, key string, def float64) float64 {
	v, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil || !(v > 0) || math.IsInf(v, 1) {
		return def
	}
	return v
}
