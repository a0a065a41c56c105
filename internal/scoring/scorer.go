package scoring

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/pose-coach/internal/logging"
	"github.com/example/pose-coach/internal/pose"
)

// FrameScorer turns one camera frame into a confidence score and feedback.
// It is safe for concurrent use when its detector is.
type FrameScorer struct {
	detector pose.Detector
	rules    []Rule
	logger   *zap.Logger
}

// Option customises a FrameScorer.
type Option func(*FrameScorer)

// WithRules replaces the default rule set.
func WithRules(rules ...Rule) Option {
	return func(s *FrameScorer) {
		s.rules = rules
	}
}

// NewFrameScorer builds a scorer around detector.
func NewFrameScorer(detector pose.Detector, logger *zap.Logger, opts ...Option) *FrameScorer {
	s := &FrameScorer{
		detector: detector,
		rules:    DefaultRules(),
		logger:   logger.Named("frame_scorer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score decodes imageBytes, runs the detector and applies the rules. It never
// fails: decode and detector errors yield Unavailable, an empty frame yields NoPose.
func (s *FrameScorer) Score(ctx context.Context, imageBytes []byte) (result ScoreResult) {
	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(s.logger, "scoring.score", requestID)

	defer func() {
		if r := recover(); r != nil {
			opLogger.Error("frame scoring panicked", zap.Any("panic", r))
			result = Unavailable()
		}
	}()

	img, err := DecodeImage(imageBytes)
	if err != nil {
		opLogger.Warn("failed to decode frame", zap.Error(err), zap.Int("bytes", len(imageBytes)))
		return Unavailable()
	}

	set, err := s.detector.Detect(ctx, img)
	if err != nil {
		wrapped := logging.NewOperationError("scoring.detect", requestID, err)
		opLogger.Error("pose detection failed", zap.Error(wrapped))
		return Unavailable()
	}
	if set == nil {
		return NoPose()
	}

	return s.ScoreLandmarks(set)
}

// ScoreLandmarks applies the rules to a detected pose. A nil set yields NoPose.
func (s *FrameScorer) ScoreLandmarks(set *pose.LandmarkSet) ScoreResult {
	if set == nil {
		return NoPose()
	}

	score := BaseScore
	feedback := make([]string, 0, len(s.rules))
	for _, rule := range s.rules {
		delta, message, ok := s.apply(rule, set)
		if !ok {
			continue
		}
		score += delta
		feedback = append(feedback, message)
	}

	return ScoreResult{
		ConfidenceScore: Clamp(score),
		Feedback:        feedback,
		HasPose:         true,
	}
}

// apply runs one rule; a panicking rule contributes nothing.
func (s *FrameScorer) apply(rule Rule, set *pose.LandmarkSet) (delta int, message string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("rule evaluation failed", zap.String("rule", rule.Name), zap.String("panic", fmt.Sprint(r)))
			delta, message, ok = 0, "", false
		}
	}()
	return rule.Evaluate(set)
}
