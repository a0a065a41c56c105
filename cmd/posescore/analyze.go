package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/pose-coach/internal/bootstrap"
	"github.com/example/pose-coach/internal/config"
	"github.com/example/pose-coach/internal/logging"
	"github.com/example/pose-coach/internal/scoring"
)

var (
	analyzeBackend string
	analyzeBase64  bool
	analyzePretty  bool
)

type frameScorer interface {
	Score(ctx context.Context, imageBytes []byte) scoring.ScoreResult
}

type fileResult struct {
	File string `json:"file"`
	scoring.ScoreResult
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>...",
	Short: "Score one or more image files",
	Long: `Score image files and print one JSON result per file.
With --base64 each file is read as a base64 string or data URL, the same
payload the browser posts to /api/analyze-pose.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if analyzeBackend != "" {
			cfg.DetectorBackend = analyzeBackend
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		logger, err := logging.NewLogger(logging.Options{Level: "warn", File: cfg.LogFile})
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		backend, err := bootstrap.NewDetector(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize pose detector: %w", err)
		}
		defer func() {
			if err := backend.Close(); err != nil {
				logger.Warn("failed to release pose detector", zap.Error(err))
			}
		}()

		scorer := scoring.NewFrameScorer(backend, logger)
		return runAnalyze(ctx, cmd.OutOrStdout(), scorer, args, analyzeBase64, analyzePretty)
	},
}

func runAnalyze(ctx context.Context, out io.Writer, scorer frameScorer, paths []string, isBase64, pretty bool) error {
	enc := json.NewEncoder(out)
	if pretty {
		enc.SetIndent("", "  ")
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		frame := data
		if isBase64 {
			decoded, err := scoring.DecodePayload(string(data))
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", path, err)
			}
			frame = decoded
		}

		result := fileResult{File: filepath.Base(path), ScoreResult: scorer.Score(ctx, frame)}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeBackend, "backend", "", "Detector backend (onnx or grpc), overrides DETECTOR_BACKEND")
	analyzeCmd.Flags().BoolVar(&analyzeBase64, "base64", false, "Treat files as base64 strings or data URLs")
	analyzeCmd.Flags().BoolVar(&analyzePretty, "pretty", false, "Indent JSON output")
}
