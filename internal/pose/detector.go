package pose

import (
	"context"
	"image"
)

// Detector finds body landmarks on a single frame.
//
// Implementations are not required to be safe for concurrent use; wrap them
// in a Pool when a detector is shared between requests. Detect returns a nil
// set and a nil error when no person is visible.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (*LandmarkSet, error)
	Close() error
}

// Config holds thresholds shared by detector backends.
type Config struct {
	// MinPoseScore is the mean keypoint confidence below which the frame is
	// reported as having no pose.
	MinPoseScore float64
	// MinKeypointScore drops individual keypoints the model is unsure about.
	MinKeypointScore float64
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		MinPoseScore:     0.25,
		MinKeypointScore: 0.2,
	}
}
