package scoring

import (
	"math"

	"github.com/example/pose-coach/internal/pose"
)

// Rule inspects one aspect of the pose. It returns the score delta and the
// feedback line, or ok=false when the landmarks it needs are missing.
type Rule struct {
	Name     string
	Evaluate func(set *pose.LandmarkSet) (delta int, message string, ok bool)
}

// Feedback lines produced by the built-in rules.
const (
	MsgPostureGood   = "✅ Good posture - shoulders are level"
	MsgPostureUneven = "⚠️ Slightly uneven shoulders - try to sit straighter"
	MsgPosturePoor   = "❌ Poor posture - significant shoulder tilt detected"

	MsgHeadGreat = "✅ Great eye contact - head positioned well"
	MsgHeadLook  = "⚠️ Look more directly at the camera"
	MsgHeadPoor  = "❌ Poor eye contact - head turned away"

	MsgOpenWide     = "✅ Open body language - confident posture"
	MsgOpenModerate = "⚠️ Moderately open posture"
	MsgOpenClosed   = "❌ Closed body language - try to open up your posture"
)

// DefaultRules returns posture, head position and openness, in that order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "posture", Evaluate: evaluatePosture},
		{Name: "head_position", Evaluate: evaluateHeadPosition},
		{Name: "openness", Evaluate: evaluateOpenness},
	}
}

func evaluatePosture(set *pose.LandmarkSet) (int, string, bool) {
	left, okL := set.Get(pose.LeftShoulder)
	right, okR := set.Get(pose.RightShoulder)
	if !okL || !okR {
		return 0, "", false
	}

	diff := math.Abs(left.Y - right.Y)
	switch {
	case diff < 0.05:
		return 2, MsgPostureGood, true
	case diff < 0.1:
		return 1, MsgPostureUneven, true
	default:
		return 0, MsgPosturePoor, true
	}
}

func evaluateHeadPosition(set *pose.LandmarkSet) (int, string, bool) {
	nose, okN := set.Get(pose.Nose)
	leftEye, okL := set.Get(pose.LeftEye)
	rightEye, okR := set.Get(pose.RightEye)
	if !okN || !okL || !okR {
		return 0, "", false
	}

	centerX := (leftEye.X + rightEye.X) / 2
	deviation := math.Abs(nose.X - centerX)
	switch {
	case deviation < 0.03:
		return 2, MsgHeadGreat, true
	case deviation < 0.06:
		return 1, MsgHeadLook, true
	default:
		return 0, MsgHeadPoor, true
	}
}

func evaluateOpenness(set *pose.LandmarkSet) (int, string, bool) {
	left, okL := set.Get(pose.LeftShoulder)
	right, okR := set.Get(pose.RightShoulder)
	if !okL || !okR {
		return 0, "", false
	}

	width := math.Abs(left.X - right.X)
	switch {
	case width > 0.25:
		return 1, MsgOpenWide, true
	case width > 0.2:
		return 0, MsgOpenModerate, true
	default:
		return -1, MsgOpenClosed, true
	}
}
