// Package bootstrap assembles the runtime pieces shared by the server and the CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/pose-coach/internal/config"
	"github.com/example/pose-coach/internal/grpcclient"
	"github.com/example/pose-coach/internal/pose"
	"github.com/example/pose-coach/internal/pose/movenet"
)

// Backend is the configured detector. Closing it releases the pool, the
// connection or the onnxruntime environment behind it.
type Backend struct {
	pose.Detector
	// Pool is set for backends that need serialized access to each instance.
	Pool    *pose.Pool
	cleanup []func() error
}

// Close releases everything the backend owns, in reverse order of creation.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		if err := b.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewDetector builds the backend named by cfg.DetectorBackend.
func NewDetector(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	poseCfg := pose.Config{
		MinPoseScore:     cfg.MinPoseScore,
		MinKeypointScore: cfg.MinKeypointScore,
	}

	switch cfg.DetectorBackend {
	case config.BackendGRPC:
		detector, err := grpcclient.DialPoseDetector(ctx, cfg.PoseDetectorAddr, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using remote pose detector", zap.String("addr", cfg.PoseDetectorAddr))
		return &Backend{Detector: detector, cleanup: []func() error{detector.Close}}, nil

	case config.BackendONNX:
		if err := movenet.InitEnvironment(cfg.ONNXLibPath); err != nil {
			return nil, err
		}
		backend := &Backend{cleanup: []func() error{movenet.DestroyEnvironment}}

		factory := func() (pose.Detector, error) {
			return movenet.NewDetector(movenet.Config{
				ModelPath: cfg.ModelPath,
				InputSize: cfg.ModelInputSize,
				Pose:      poseCfg,
			})
		}
		pool, err := pose.NewPool(factory, cfg.DetectorPoolSize, cfg.DetectorAcquireTimeout)
		if err != nil {
			return nil, errors.Join(err, backend.Close())
		}
		backend.Detector = pool
		backend.Pool = pool
		backend.cleanup = append(backend.cleanup, pool.Close)

		logger.Info("using onnx pose detector",
			zap.String("model", cfg.ModelPath),
			zap.Int("pool_size", pool.Size()),
		)
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.DetectorBackend)
	}
}
