package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/pose-coach/internal/logging"
	"github.com/example/pose-coach/internal/scoring"
)

// DefaultCacheTTL bounds how long an identical frame reuses its result.
const DefaultCacheTTL = 30 * time.Second

// FrameScorer is the scoring dependency of the use case.
type FrameScorer interface {
	Score(ctx context.Context, imageBytes []byte) scoring.ScoreResult
}

// AnalysisUseCase encapsulates the analyse-a-frame flow.
type AnalysisUseCase struct {
	scorer         FrameScorer
	cache          Cache
	cacheTTL       time.Duration
	logger         *zap.Logger
	metrics        *analysisMetrics
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Option customises an AnalysisUseCase.
type Option func(*AnalysisUseCase)

// WithCache enables the frame-result cache. A nil cache disables it.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(uc *AnalysisUseCase) {
		uc.cache = cache
		if ttl > 0 {
			uc.cacheTTL = ttl
		}
	}
}

// NewAnalysisUseCase constructs a new use case instance.
func NewAnalysisUseCase(scorer FrameScorer, logger *zap.Logger, opts ...Option) *AnalysisUseCase {
	uc := &AnalysisUseCase{
		scorer:         scorer,
		cacheTTL:       DefaultCacheTTL,
		logger:         logger.Named("analysis_usecase"),
		metrics:        &analysisMetrics{},
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// AnalyzeFrame scores a base64 or data-URL encoded frame. Undecodable payloads
// produce the unavailable result rather than an error; an error is returned
// only when the caller's context is already done.
func (uc *AnalysisUseCase) AnalyzeFrame(ctx context.Context, payload string) (*scoring.ScoreResult, error) {
	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logging.ContextWithRequestID(ctx, requestID)
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze_frame", requestID)

	if err := ctx.Err(); err != nil {
		return nil, logging.NewOperationError("usecase.analyze_frame", requestID, err)
	}

	start := time.Now()
	imageBytes, err := scoring.DecodePayload(payload)
	if err != nil {
		opLogger.Warn("failed to decode image payload", zap.Error(err))
		result := scoring.Unavailable()
		uc.metrics.record(result, time.Since(start), false)
		return &result, nil
	}

	cacheKey := frameCacheKey(imageBytes)
	if cached, ok := uc.lookup(ctx, requestID, cacheKey); ok {
		uc.metrics.record(*cached, time.Since(start), true)
		return cached, nil
	}

	result := uc.scorer.Score(ctx, imageBytes)
	uc.metrics.record(result, time.Since(start), false)

	if !result.IsUnavailable() {
		uc.store(ctx, requestID, cacheKey, result)
	}

	opLogger.Debug("frame analysed",
		zap.Int("confidence_score", result.ConfidenceScore),
		zap.Bool("has_pose", result.HasPose),
		zap.Duration("latency", time.Since(start)),
	)
	return &result, nil
}

func frameCacheKey(imageBytes []byte) string {
	hash := sha1.Sum(imageBytes)
	return fmt.Sprintf("pose:frame:%s", hex.EncodeToString(hash[:]))
}

// lookup returns a cached result. Cache failures are logged and treated as a miss.
func (uc *AnalysisUseCase) lookup(ctx context.Context, requestID, cacheKey string) (*scoring.ScoreResult, bool) {
	if uc.cache == nil {
		return nil, false
	}

	var raw string
	err := uc.withCacheRetry(ctx, requestID, "cache.get.result", func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(uc.logger, "usecase.lookup", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return nil, false
	}

	var result scoring.ScoreResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		logging.WithOperation(uc.logger, "usecase.lookup", requestID).Warn("failed to decode cached result", zap.Error(err))
		return nil, false
	}
	if result.Feedback == nil {
		result.Feedback = []string{}
	}
	return &result, true
}

func (uc *AnalysisUseCase) store(ctx context.Context, requestID, cacheKey string, result scoring.ScoreResult) {
	if uc.cache == nil {
		return
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.store", requestID).Error("failed to serialize result", zap.Error(err))
		return
	}

	if err := uc.withCacheRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), uc.cacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "usecase.store", requestID).Warn("failed to cache result", zap.Error(err))
	}
}

func (uc *AnalysisUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
