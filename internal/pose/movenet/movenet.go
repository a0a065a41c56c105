// Package movenet runs the MoveNet single-pose model through onnxruntime.
package movenet

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/example/pose-coach/internal/pose"
)

const (
	DefaultInputSize = 192
	inputName        = "input"
	outputName       = "output_0"
	valuesPerPoint   = 3
)

// Config describes where the model lives and how to read its output.
type Config struct {
	ModelPath string
	InputSize int
	Threads   int
	Pose      pose.Config
}

// InitEnvironment loads the onnxruntime shared library. It must run once per
// process before NewDetector.
func InitEnvironment(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// DestroyEnvironment releases the onnxruntime library.
func DestroyEnvironment() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Detector owns one inference session and its tensors. It is not safe for
// concurrent use; put several of them in a pose.Pool.
type Detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[int32]
	output    *ort.Tensor[float32]
	inputSize int
	cfg       pose.Config
}

// NewDetector creates a session for cfg.ModelPath.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(cfg.Threads); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}

	size := int64(cfg.InputSize)
	input, err := ort.NewEmptyTensor[int32](ort.NewShape(1, size, size, 3))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, int64(len(pose.KeypointOrder)), valuesPerPoint))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &Detector{
		session:   session,
		input:     input,
		output:    output,
		inputSize: cfg.InputSize,
		cfg:       cfg.Pose,
	}, nil
}

// Detect implements pose.Detector.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*pose.LandmarkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stretching keeps the model's normalized coordinates valid for the original frame.
	resized := imaging.Resize(img, d.inputSize, d.inputSize, imaging.Linear)
	fillInput(d.input.GetData(), resized)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	return decodeKeypoints(d.output.GetData(), d.cfg)
}

// Close releases the session and tensors.
func (d *Detector) Close() error {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	if d.output != nil {
		d.output.Destroy()
	}
	return nil
}

// fillInput writes RGB bytes of img into dst in NHWC order.
func fillInput(dst []int32, img *image.NRGBA) {
	bounds := img.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[(y-bounds.Min.Y)*img.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			px := row[x*4 : x*4+4]
			dst[i] = int32(px[0])
			dst[i+1] = int32(px[1])
			dst[i+2] = int32(px[2])
			i += 3
		}
	}
}

// decodeKeypoints turns the (y, x, score) triples into a landmark set.
func decodeKeypoints(raw []float32, cfg pose.Config) (*pose.LandmarkSet, error) {
	want := len(pose.KeypointOrder) * valuesPerPoint
	if len(raw) < want {
		return nil, fmt.Errorf("unexpected output length %d, want %d", len(raw), want)
	}

	var total float64
	points := make(map[pose.LandmarkName]pose.Landmark, len(pose.KeypointOrder))
	for i, name := range pose.KeypointOrder {
		y := float64(raw[i*valuesPerPoint])
		x := float64(raw[i*valuesPerPoint+1])
		score := float64(raw[i*valuesPerPoint+2])
		total += score

		if score < cfg.MinKeypointScore {
			continue
		}
		points[name] = pose.Landmark{X: clampUnit(x), Y: clampUnit(y), Visibility: score}
	}

	if total/float64(len(pose.KeypointOrder)) < cfg.MinPoseScore || len(points) == 0 {
		return nil, nil
	}
	return pose.NewLandmarkSet(points), nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
