package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"facturas/internal/export"
	"facturas/internal/ingest"
	"facturas/internal/ledger"
	"facturas/internal/logger"
	"facturas/internal/model"
	"facturas/internal/vault"
)

// Config holds server configuration
type Config struct {
	Address            string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	Debug              bool
	Workers            int
	Rates              ledger.RateTable
	AdvanceOnDuplicate bool
}

// Server represents the HTTP API server
type Server struct {
	config      *Config
	router      *gin.Engine
	vault       vault.Vault
	coordinator *ingest.Coordinator
	validator   *ledger.Validator
	log         zerolog.Logger
}

// NewServer creates a new API server storing into v
func NewServer(config *Config, v vault.Vault) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	rates := config.Rates
	if len(rates.Rates) == 0 {
		rates = ledger.DefaultRateTable()
	}

	s := &Server{
		config: config,
		router: router,
		vault:  v,
		coordinator: ingest.New(v,
			ingest.WithWorkers(config.Workers),
		),
		validator: ledger.NewValidator(rates,
			ledger.WithAdvanceOnDuplicate(config.AdvanceOnDuplicate),
		),
		log: logger.WithComponent("server"),
	}

	router.Use(s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	xml := s.router.Group("/api/xml")
	{
		xml.POST("/upload", s.handleUpload)
		xml.GET("/list", s.handleList)
		xml.DELETE("/:id", s.handleDelete)
		xml.GET("/export", s.handleExport)
	}

	excel := s.router.Group("/api/excel")
	{
		excel.POST("/process", s.handleProcessExcel)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return srv.ListenAndServe()
}

// Handler returns the http.Handler for use with custom servers and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestLogger tags every request with an id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		logger.WithRequestID(requestID).Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid multipart form"})
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["files[]"]
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no files provided"})
		return
	}

	files := make([]ingest.File, 0, len(headers))
	for _, h := range headers {
		content, err := readUpload(h)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read " + h.Filename})
			return
		}
		files = append(files, ingest.File{Name: h.Filename, Content: content})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	c.JSON(http.StatusOK, s.coordinator.Run(ctx, files))
}

func (s *Server) handleList(c *gin.Context) {
	page := intQuery(c, "page", 1)
	perPage := intQuery(c, "per_page", vault.DefaultPerPage)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	result, err := s.vault.List(ctx, page, perPage)
	if err != nil {
		s.log.Error().Err(err).Msg("Listing invoices failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list invoices"})
		return
	}

	c.JSON(http.StatusOK, ListResponse{
		Items:       result.Items,
		Total:       result.Total,
		Pages:       result.Pages,
		CurrentPage: result.CurrentPage,
	})
}

func (s *Server) handleDelete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid invoice id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := s.vault.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrInvoiceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "invoice not found"})
			return
		}
		s.log.Error().Err(err).Int64("id", id).Msg("Deleting invoice failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to delete invoice"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "invoice deleted"})
}

func (s *Server) handleExport(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	invoices, err := s.vault.All(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Export snapshot failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to export invoices"})
		return
	}

	var buf bytes.Buffer
	if err := export.WriteInvoices(&buf, invoices); err != nil {
		s.log.Error().Err(err).Msg("Export serialization failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to generate export"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="invoices_export.xlsx"`)
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

func (s *Server) handleProcessExcel(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no file part"})
		return
	}

	content, err := readUpload(header)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read " + header.Filename})
		return
	}

	rows, err := ledger.ReadRows(bytes.NewReader(content))
	if err != nil {
		if errors.Is(err, ledger.ErrMalformedSpreadsheet) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		s.log.Error().Err(err).Str("file", header.Filename).Msg("Spreadsheet read failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to process spreadsheet"})
		return
	}

	validated := s.validator.Validate(rows)

	c.JSON(http.StatusOK, ProcessExcelResponse{
		Data:    validated,
		Summary: ProcessSummary{ProcessedRows: len(validated)},
	})
}

// Helper functions

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
