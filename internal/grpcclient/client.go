package grpcclient

import (
	"bytes"
	"context"
	"errors"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/pose-coach/internal/logging"
	"github.com/example/pose-coach/internal/pose"
)

// DetectMethod is the unary RPC served by the pose-estimation sidecar. It
// takes the JPEG frame as a BytesValue and answers with a Struct of the form
// {"pose_found": bool, "landmarks": [{"name", "x", "y", "visibility"}]}.
const DetectMethod = "/pose.v1.PoseDetector/Detect"

const jpegQuality = 90

// DialPoseDetector returns a ready-to-use detector backed by the remote service.
func DialPoseDetector(ctx context.Context, addr string, logger *zap.Logger) (*PoseDetector, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_pose_detector", "", err)
		logger.Error("failed to dial pose detector", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}

	detector := NewPoseDetector(conn, logger)
	detector.closer = conn.Close
	return detector, nil
}

// NewPoseDetector wraps an existing connection. The caller keeps ownership of conn.
func NewPoseDetector(conn grpc.ClientConnInterface, logger *zap.Logger) *PoseDetector {
	return &PoseDetector{conn: conn, logger: logger.Named("pose_detector")}
}

// PoseDetector implements pose.Detector over gRPC. It is safe for concurrent use.
type PoseDetector struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
	closer func() error
}

// Detect sends img to the remote detector.
func (g *PoseDetector) Detect(ctx context.Context, img image.Image) (*pose.LandmarkSet, error) {
	requestID := logging.RequestIDFromContext(ctx)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, logging.NewOperationError("grpcclient.encode_frame", requestID, err)
	}

	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", requestID)
	}

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, DetectMethod, wrapperspb.Bytes(buf.Bytes()), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.detect", requestID, err)
		g.logger.Error("pose detector call failed", zap.Error(wrapped), zap.String("request_id", requestID))
		return nil, wrapped
	}

	return landmarksFromStruct(resp)
}

// Close releases the connection when the detector dialed it.
func (g *PoseDetector) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}

func landmarksFromStruct(resp *structpb.Struct) (*pose.LandmarkSet, error) {
	fields := resp.GetFields()
	if !fields["pose_found"].GetBoolValue() {
		return nil, nil
	}

	list := fields["landmarks"].GetListValue()
	if list == nil {
		return nil, errors.New("pose_found without landmarks list")
	}

	points := make(map[pose.LandmarkName]pose.Landmark, len(list.GetValues()))
	for _, value := range list.GetValues() {
		entry := value.GetStructValue().GetFields()
		name, ok := pose.ParseLandmarkName(entry["name"].GetStringValue())
		if !ok {
			continue
		}
		points[name] = pose.Landmark{
			X:          entry["x"].GetNumberValue(),
			Y:          entry["y"].GetNumberValue(),
			Visibility: entry["visibility"].GetNumberValue(),
		}
	}
	return pose.NewLandmarkSet(points), nil
}
