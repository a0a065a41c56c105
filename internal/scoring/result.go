package scoring

// Score bounds and starting points.
const (
	MinScore         = 1
	MaxScore         = 10
	BaseScore        = 5
	NoPoseScore      = 3
	UnavailableScore = 5
)

// Fixed feedback for frames that could not be scored.
const (
	MsgUnavailable = "Analysis temporarily unavailable"
	MsgNoPose      = "Unable to detect pose. Please ensure you're visible in the camera."
)

// ScoreResult is the outcome of scoring one frame.
type ScoreResult struct {
	ConfidenceScore int      `json:"confidence_score"`
	Feedback        []string `json:"feedback"`
	HasPose         bool     `json:"has_pose"`
}

// Unavailable is returned when the frame could not be decoded or analysed.
func Unavailable() ScoreResult {
	return ScoreResult{
		ConfidenceScore: UnavailableScore,
		Feedback:        []string{MsgUnavailable},
		HasPose:         false,
	}
}

// NoPose is returned when the detector found nobody in the frame.
func NoPose() ScoreResult {
	return ScoreResult{
		ConfidenceScore: NoPoseScore,
		Feedback:        []string{MsgNoPose},
		HasPose:         false,
	}
}

// IsUnavailable reports whether r is the degraded fallback result.
func (r ScoreResult) IsUnavailable() bool {
	return !r.HasPose && r.ConfidenceScore == UnavailableScore &&
		len(r.Feedback) == 1 && r.Feedback[0] == MsgUnavailable
}

// Clamp bounds score to [MinScore, MaxScore].
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
