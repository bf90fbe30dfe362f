package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/model"
)

const readyTimeout = time.Second

// IngestService resolves inbound records.
type IngestService interface {
	Ingest(ctx context.Context, raw model.RawRecord) (model.Resolution, error)
}

// QueryService serves profile and cohort lookups.
type QueryService interface {
	GetProfile(ctx context.Context, email, cookie string) (model.Profile, error)
	QueryCohorts(ctx context.Context, filter model.CohortFilter) ([]model.CohortSnapshot, error)
}

// BulkService loads uploaded CSV files.
type BulkService interface {
	Upload(ctx context.Context, name string, file io.ReadSeeker, clientID string) (model.LoadReport, error)
}

// Pinger reports whether the profile store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the audience HTTP API.
type Handler struct {
	ingest         IngestService
	query          QueryService
	bulk           BulkService
	store          Pinger
	contextManager model.ContextManager
	logger         *logger.Logger
	maxUploadBytes int64
}

// New creates a Handler. maxUploadBytes bounds the multipart body of uploads.
func New(
	ingest IngestService,
	query QueryService,
	bulk BulkService,
	store Pinger,
	contextManager model.ContextManager,
	logger *logger.Logger,
	maxUploadBytes int64,
) *Handler {
	return &Handler{
		ingest:         ingest,
		query:          query,
		bulk:           bulk,
		store:          store,
		contextManager: contextManager,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Ingest handles POST /api/ingest.
func (h *Handler) Ingest(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	if len(req.Data) == 0 || isNull(req.Data) {
		writeError(c, &model.ValidationError{Field: "data", Tag: "required"}, "")
		return
	}

	raw, err := decodeRecord(req.Data)
	if err != nil {
		writeError(c, err, "")
		return
	}
	raw.ClientID, _ = h.contextManager.GetClientIDFromContext(c.Request.Context())

	res, err := h.ingest.Ingest(c.Request.Context(), raw)
	if err != nil {
		writeError(c, err, "")
		return
	}

	status := http.StatusOK
	if res.Action == model.ActionCreateNew {
		status = http.StatusCreated
	}
	c.JSON(status, newIngestResponse(res))
}

// GetUser handles GET /api/user.
func (h *Handler) GetUser(c *gin.Context) {
	profile, err := h.query.GetProfile(c.Request.Context(), c.Query("email"), c.Query("cookie"))
	if err != nil {
		writeError(c, err, "user not found")
		return
	}

	c.JSON(http.StatusOK, newProfileResponse(profile))
}

// QueryCohorts handles GET /api/cohort/user.
func (h *Handler) QueryCohorts(c *gin.Context) {
	var q cohortQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}

	snapshots, err := h.query.QueryCohorts(c.Request.Context(), q.filter())
	if err != nil {
		writeError(c, err, "no users found")
		return
	}

	c.JSON(http.StatusOK, newCohortResponse(snapshots))
}

// Upload handles POST /api/upload with a multipart "file" field.
func (h *Handler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(c, err, "")
		return
	}
	defer file.Close()

	clientID, _ := h.contextManager.GetClientIDFromContext(c.Request.Context())
	report, err := h.bulk.Upload(c.Request.Context(), header.Filename, file, clientID)
	if err != nil {
		status, msg := handleError(err, "")
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		c.JSON(status, gin.H{"error": msg, "report": report})
		return
	}

	c.JSON(http.StatusOK, report)
}

// Health handles GET /api/health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /api/ready by pinging the profile store.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
