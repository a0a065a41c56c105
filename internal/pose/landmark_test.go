package pose

import "testing"

func TestLandmarkSetGet(t *testing.T) {
	points := map[LandmarkName]Landmark{LeftShoulder: {X: 0.3, Y: 0.6, Visibility: 0.9}}
	set := NewLandmarkSet(points)
	points[RightShoulder] = Landmark{}

	if _, ok := set.Get(RightShoulder); ok {
		t.Fatal("set must not observe later writes to the source map")
	}
	lm, ok := set.Get(LeftShoulder)
	if !ok || lm.X != 0.3 || lm.Y != 0.6 {
		t.Fatalf("unexpected landmark %+v (ok=%v)", lm, ok)
	}

	var none *LandmarkSet
	if _, ok := none.Get(Nose); ok {
		t.Fatal("nil set must report landmarks as missing")
	}
	if none.Len() != 0 {
		t.Fatalf("expected nil set to be empty, got %d", none.Len())
	}
}

func TestParseLandmarkName(t *testing.T) {
	if name, ok := ParseLandmarkName("RIGHT_EYE"); !ok || name != RightEye {
		t.Fatalf("expected RIGHT_EYE, got %q (ok=%v)", name, ok)
	}
	if _, ok := ParseLandmarkName("LEFT_PINKY"); ok {
		t.Fatal("expected unknown landmark to be rejected")
	}
	if len(KeypointOrder) != 17 {
		t.Fatalf("expected 17 keypoints, got %d", len(KeypointOrder))
	}
}
