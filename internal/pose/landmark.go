package pose

// LandmarkName identifies a body keypoint.
type LandmarkName string

// The 17 body keypoints, in the order single-person pose models emit them.
const (
	Nose          LandmarkName = "NOSE"
	LeftEye       LandmarkName = "LEFT_EYE"
	RightEye      LandmarkName = "RIGHT_EYE"
	LeftEar       LandmarkName = "LEFT_EAR"
	RightEar      LandmarkName = "RIGHT_EAR"
	LeftShoulder  LandmarkName = "LEFT_SHOULDER"
	RightShoulder LandmarkName = "RIGHT_SHOULDER"
	LeftElbow     LandmarkName = "LEFT_ELBOW"
	RightElbow    LandmarkName = "RIGHT_ELBOW"
	LeftWrist     LandmarkName = "LEFT_WRIST"
	RightWrist    LandmarkName = "RIGHT_WRIST"
	LeftHip       LandmarkName = "LEFT_HIP"
	RightHip      LandmarkName = "RIGHT_HIP"
	LeftKnee      LandmarkName = "LEFT_KNEE"
	RightKnee     LandmarkName = "RIGHT_KNEE"
	LeftAnkle     LandmarkName = "LEFT_ANKLE"
	RightAnkle    LandmarkName = "RIGHT_ANKLE"
)

// KeypointOrder lists landmark names by model output index.
var KeypointOrder = [...]LandmarkName{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow,
	LeftWrist, RightWrist, LeftHip, RightHip,
	LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

// ParseLandmarkName maps a wire name onto a known landmark.
func ParseLandmarkName(s string) (LandmarkName, bool) {
	for _, name := range KeypointOrder {
		if string(name) == s {
			return name, true
		}
	}
	return "", false
}

// Landmark is a keypoint in normalized image coordinates. X and Y are in
// [0,1] relative to the frame width and height.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// LandmarkSet holds the landmarks detected on one frame. A nil *LandmarkSet
// means no pose was found.
type LandmarkSet struct {
	points map[LandmarkName]Landmark
}

// NewLandmarkSet builds a set from the given points.
func NewLandmarkSet(points map[LandmarkName]Landmark) *LandmarkSet {
	copied := make(map[LandmarkName]Landmark, len(points))
	for name, lm := range points {
		copied[name] = lm
	}
	return &LandmarkSet{points: copied}
}

// Get returns the named landmark and whether the detector produced it.
func (s *LandmarkSet) Get(name LandmarkName) (Landmark, bool) {
	if s == nil {
		return Landmark{}, false
	}
	lm, ok := s.points[name]
	return lm, ok
}

// Len reports how many landmarks are present.
func (s *LandmarkSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.points)
}
