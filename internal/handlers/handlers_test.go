package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/example/pose-coach/internal/middleware"
	"github.com/example/pose-coach/internal/pose"
	"github.com/example/pose-coach/internal/scoring"
	"github.com/example/pose-coach/internal/usecase"
)

type stubAnalyzer struct {
	result   *scoring.ScoreResult
	err      error
	payloads []string
}

func (s *stubAnalyzer) AnalyzeFrame(ctx context.Context, payload string) (*scoring.ScoreResult, error) {
	s.payloads = append(s.payloads, payload)
	return s.result, s.err
}

func (s *stubAnalyzer) GetMetricsSummary() *usecase.MetricsSummary {
	return &usecase.MetricsSummary{TotalRequests: int64(len(s.payloads))}
}

type stubPool struct{}

func (stubPool) Metrics() pose.PoolMetrics { return pose.PoolMetrics{Size: 2} }

func newRouter(analyzer Analyzer, mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, analyzer, stubPool{}, mw...)
	return router
}

func postJSON(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/analyze-pose", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %q: %v", resp.Body.String(), err)
	}
	return body
}

func TestAnalyzePoseReturnsScoreResult(t *testing.T) {
	analyzer := &stubAnalyzer{result: &scoring.ScoreResult{
		ConfidenceScore: 10,
		Feedback:        []string{scoring.MsgPostureGood, scoring.MsgHeadGreat, scoring.MsgOpenWide},
		HasPose:         true,
	}}
	router := newRouter(analyzer)

	resp := postJSON(router, `{"image":"data:image/jpeg;base64,AAAA"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}

	body := decodeBody(t, resp)
	if body["confidence_score"] != float64(10) || body["has_pose"] != true {
		t.Fatalf("unexpected body %v", body)
	}
	if feedback, ok := body["feedback"].([]interface{}); !ok || len(feedback) != 3 {
		t.Fatalf("unexpected feedback %v", body["feedback"])
	}
	if analyzer.payloads[0] != "data:image/jpeg;base64,AAAA" {
		t.Fatalf("payload not forwarded verbatim: %q", analyzer.payloads[0])
	}
}

func TestAnalyzePoseRejectsMissingImage(t *testing.T) {
	for _, body := range []string{`{}`, `{"image":null}`, `{"image":""}`, `{"image":"   "}`, ``, `not json`} {
		t.Run(body, func(t *testing.T) {
			analyzer := &stubAnalyzer{}
			resp := postJSON(newRouter(analyzer), body)

			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
			}
			if got := decodeBody(t, resp)["error"]; got != "No image data provided" {
				t.Fatalf("unexpected error %v", got)
			}
			if len(analyzer.payloads) != 0 {
				t.Fatal("analyzer must not run without an image")
			}
		})
	}
}

func TestAnalyzePoseNonStringImageDegradesToUnavailable(t *testing.T) {
	for _, body := range []string{`{"image":123}`, `{"image":true}`, `{"image":{"data":"abc"}}`, `{"image":["abc"]}`} {
		t.Run(body, func(t *testing.T) {
			analyzer := &stubAnalyzer{}
			resp := postJSON(newRouter(analyzer), body)

			if resp.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
			}
			var result scoring.ScoreResult
			if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if !result.IsUnavailable() {
				t.Fatalf("expected unavailable result, got %+v", result)
			}
			if len(analyzer.payloads) != 0 {
				t.Fatal("analyzer must not run for a non-string image")
			}
		})
	}
}

func TestAnalyzePoseMapsFailureTo500(t *testing.T) {
	router := newRouter(&stubAnalyzer{err: errors.New("context canceled")})

	resp := postJSON(router, `{"image":"AAAA"}`)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, resp.Code)
	}
	if got := decodeBody(t, resp)["error"]; got != "Analysis failed" {
		t.Fatalf("unexpected error %v", got)
	}
}

func TestAnalyzePoseRejectsLargeUpload(t *testing.T) {
	router := newRouter(&stubAnalyzer{}, middleware.BodyLimit(64))

	payload := `{"image":"` + string(bytes.Repeat([]byte("A"), 128)) + `"}`
	resp := postJSON(router, payload)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestStatusRoutes(t *testing.T) {
	router := newRouter(&stubAnalyzer{})

	tests := []struct {
		path   string
		status string
	}{
		{path: "/", status: "success"},
		{path: "/api/health", status: "healthy"},
	}
	for _, tc := range tests {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.path, resp.Code)
		}
		if got := decodeBody(t, resp)["status"]; got != tc.status {
			t.Fatalf("%s: unexpected status field %v", tc.path, got)
		}
	}
}

func TestMetricsRouteIncludesPool(t *testing.T) {
	resp := httptest.NewRecorder()
	newRouter(&stubAnalyzer{}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	body := decodeBody(t, resp)
	pool, ok := body["detector_pool"].(map[string]interface{})
	if !ok || pool["pool_size"] != float64(2) {
		t.Fatalf("unexpected metrics body %v", body)
	}
	if _, ok := body["analysis"].(map[string]interface{}); !ok {
		t.Fatalf("missing analysis summary in %v", body)
	}
}
