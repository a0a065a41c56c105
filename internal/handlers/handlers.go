package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/pose-coach/internal/pose"
	"github.com/example/pose-coach/internal/scoring"
	"github.com/example/pose-coach/internal/usecase"
)

// Analyzer is the use case behind the analysis endpoints.
type Analyzer interface {
	AnalyzeFrame(ctx context.Context, payload string) (*scoring.ScoreResult, error)
	GetMetricsSummary() *usecase.MetricsSummary
}

// PoolMetricsProvider reports detector pool usage. It is optional.
type PoolMetricsProvider interface {
	Metrics() pose.PoolMetrics
}

type analyzeRequest struct {
	Image json.RawMessage `json:"image"`
}

// imagePayload returns the image string. present is false when the field is
// missing, null or blank; ok is false when it holds a non-string value.
func (r analyzeRequest) imagePayload() (payload string, present, ok bool) {
	raw := bytes.TrimSpace(r.Image)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, true
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", true, false
	}
	if strings.TrimSpace(payload) == "" {
		return "", false, true
	}
	return payload, true, true
}

// RegisterRoutes wires the HTTP handlers to the Gin router. analyzeMiddleware
// runs only in front of the analysis endpoint.
func RegisterRoutes(router *gin.Engine, analyzer Analyzer, pool PoolMetricsProvider, analyzeMiddleware ...gin.HandlerFunc) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "🚀 AI Interview App Backend is Running!",
			"status":  "success",
		})
	})

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Backend is working perfectly!",
		})
	})

	analyze := append(append([]gin.HandlerFunc{}, analyzeMiddleware...), analyzePose(analyzer))
	router.POST("/api/analyze-pose", analyze...)

	router.GET("/api/metrics", func(c *gin.Context) {
		body := gin.H{"analysis": analyzer.GetMetricsSummary()}
		if pool != nil {
			body["detector_pool"] = pool.Metrics()
		}
		c.JSON(http.StatusOK, body)
	})
}

func analyzePose(analyzer Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req analyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image payload too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "No image data provided"})
			return
		}
		payload, present, ok := req.imagePayload()
		if !present {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No image data provided"})
			return
		}
		if !ok {
			c.JSON(http.StatusOK, scoring.Unavailable())
			return
		}

		result, err := analyzer.AnalyzeFrame(c.Request.Context(), payload)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed"})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
