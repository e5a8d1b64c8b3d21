// Package api exposes the ingestion flows and the timestamp job over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/celerix-dev/celerix-telemetry/internal/telemetry"
	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgUserIDRequired  = "User ID is required."
	msgMinutesRequired = "Minutes are required."
	msgInternalError   = "Internal Server Error"
)

type Handler struct {
	Service  *telemetry.Service
	Adjuster *telemetry.Adjuster
	Store    sdk.DocumentReader
	Logger   *zap.Logger
}

type sensorDataRequest struct {
	Payload []schema.RawReading `json:"payload"`
}

type rawRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type adjustRequest struct {
	Minutes *float64 `json:"minutes"`
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/addSensorData", h.AddSensorData)
	r.POST("/addSensorDataDeferred", h.AddSensorDataDeferred)
	r.POST("/testFunction", h.TestFunction)
	r.POST("/adjustTimestamps", h.AdjustTimestamps)
	r.GET("/api/docs/*path", h.GetDocuments)
	r.GET("/healthz", h.Health)
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// AddSensorData ingests a batch for ?uid= with inline enrichment.
func (h *Handler) AddSensorData(c *gin.Context) {
	uid := c.Query("uid")
	if uid == "" {
		c.String(http.StatusBadRequest, msgUserIDRequired)
		return
	}

	var req sensorDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "Invalid payload: %v", err)
		return
	}

	id, err := h.Service.Ingest(c.Request.Context(), uid, req.Payload)
	if err != nil {
		h.ingestFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": addedMessage(id)})
}

// AddSensorDataDeferred stores a bare record in the flat sensor-data
// collection; enrichment completes asynchronously.
func (h *Handler) AddSensorDataDeferred(c *gin.Context) {
	var req sensorDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "Invalid payload: %v", err)
		return
	}

	id, err := h.Service.IngestDeferred(c.Request.Context(), req.Payload)
	if err != nil {
		h.ingestFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": addedMessage(id)})
}

// TestFunction stores the payload untouched in example-data.
func (h *Handler) TestFunction(c *gin.Context) {
	var req rawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "Invalid payload: %v", err)
		return
	}

	id, err := h.Service.StoreRaw(c.Request.Context(), req.Payload)
	if err != nil {
		h.ingestFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": addedMessage(id)})
}

func (h *Handler) ingestFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, telemetry.ErrMissingIdentity):
		c.String(http.StatusBadRequest, msgUserIDRequired)
	case errors.Is(err, telemetry.ErrInvalidPayload):
		c.String(http.StatusBadRequest, "Invalid payload: %v", err)
	default:
		h.logger().Error("Ingestion failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.Error(err)
		c.String(http.StatusInternalServerError, msgInternalError)
	}
}

// AdjustTimestamps subtracts body.minutes from every stored time of ?uid=.
func (h *Handler) AdjustTimestamps(c *gin.Context) {
	uid := c.Query("uid")
	if uid == "" {
		c.String(http.StatusBadRequest, msgUserIDRequired)
		return
	}

	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Minutes == nil {
		c.String(http.StatusBadRequest, msgMinutesRequired)
		return
	}

	res, err := h.Adjuster.Adjust(c.Request.Context(), uid, *req.Minutes)
	if err != nil {
		if errors.Is(err, telemetry.ErrMissingIdentity) {
			c.String(http.StatusBadRequest, msgUserIDRequired)
			return
		}
		if errors.Is(err, telemetry.ErrInvalidPayload) {
			c.String(http.StatusBadRequest, "Invalid payload: %v", err)
			return
		}
		h.logger().Error("Error adjusting timestamps", zap.String("uid", uid), zap.Error(err))
		c.Error(err)
		c.String(http.StatusInternalServerError, msgInternalError)
		return
	}

	if res.Found == 0 {
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("No documents found for user: %s", uid)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Timestamps adjusted for %d documents.", res.Adjusted)})
}

// GetDocuments returns a document, or the documents of a collection,
// depending on the path depth.
func (h *Handler) GetDocuments(c *gin.Context) {
	path := strings.Trim(c.Param("path"), "/")
	ctx := c.Request.Context()

	if sdk.IsDocument(path) {
		doc, err := h.Store.Get(ctx, path)
		if err != nil {
			h.readFailed(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
		return
	}

	docs, err := h.Store.List(ctx, path)
	if err != nil {
		h.readFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) readFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sdk.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, sdk.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func addedMessage(id string) string {
	return fmt.Sprintf("Message with ID: %s added.", id)
}
