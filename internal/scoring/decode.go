package scoring

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyPayload = errors.New("empty image payload")
	ErrBadBase64    = errors.New("image payload is not valid base64")
)

// DecodePayload turns a base64 string, optionally prefixed with a data URL
// header such as "data:image/jpeg;base64,", into raw image bytes.
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if _, rest, found := strings.Cut(payload, ","); found {
		payload = strings.TrimSpace(rest)
	}
	if payload == "" {
		return nil, ErrEmptyPayload
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	data, rawErr := base64.RawStdEncoding.DecodeString(payload)
	if rawErr == nil {
		return data, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrBadBase64, err)
}

// DecodeImage decodes JPEG, PNG, GIF, BMP, TIFF or WebP bytes, applying the
// EXIF orientation when present.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}
