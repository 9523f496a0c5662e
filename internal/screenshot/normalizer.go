// File: internal/screenshot/normalizer.go
// Description: Repairs raw screen captures into the validated PNG buffer the
// decision agent's input contract requires. Runs before every prediction, so
// it degrades instead of failing: callers always get a usable image back.

package screenshot

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"go.uber.org/zap"

	_ "image/gif"
	_ "image/jpeg"
)

// pngSignature is the 8-byte magic header every valid PNG starts with.
var pngSignature = []byte("\x89PNG\r\n\x1a\n")

const (
	// minDimension rejects captures too small to ground UI coordinates on.
	minDimension = 100
	// Fallback resolution matches the grounding model's expected viewport.
	fallbackWidth  = 1920
	fallbackHeight = 1080
)

// Normalizer turns raw, possibly corrupt screenshot payloads into valid PNGs.
type Normalizer struct {
	logger *zap.Logger
	// repairs counts how many inputs needed the repair or fallback path.
	repairs int
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger.Named("screenshot")}
}

// Repairs reports how many normalizations required repair or fallback.
func (n *Normalizer) Repairs() int { return n.repairs }

// Normalize accepts a base64-encoded capture, optionally wrapped in a data
// URI, and always returns a decodable PNG of at least the fallback
// resolution's validity guarantees. It never returns an error; irreparable
// input yields the deterministic fallback image.
func (n *Normalizer) Normalize(raw string) []byte {
	if raw == "" {
		n.repairs++
		n.logger.Warn("Empty screenshot payload, substituting fallback image")
		return Fallback()
	}

	// Strip a data URI prefix ("data:image/png;base64,....") if present.
	payload := raw
	if strings.HasPrefix(raw, "data:image") {
		if idx := strings.IndexByte(raw, ','); idx >= 0 {
			payload = raw[idx+1:]
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some capture paths strip the base64 padding.
		decoded, err = base64.RawStdEncoding.DecodeString(payload)
	}
	if err != nil {
		n.repairs++
		n.logger.Warn("Screenshot base64 decode failed, substituting fallback image", zap.Error(err))
		return Fallback()
	}

	return n.NormalizeBytes(decoded)
}

// NormalizeBytes validates already-decoded image bytes, repairing or
// replacing them as needed.
func (n *Normalizer) NormalizeBytes(img []byte) []byte {
	if !bytes.HasPrefix(img, pngSignature) {
		n.repairs++
		n.logger.Debug("Capture is not a PNG, re-encoding")
		return n.repair(img)
	}

	decoded, err := png.Decode(bytes.NewReader(img))
	if err != nil {
		n.repairs++
		n.logger.Warn("PNG validation failed, attempting repair", zap.Error(err))
		return n.repair(img)
	}

	bounds := decoded.Bounds()
	if bounds.Dx() < minDimension || bounds.Dy() < minDimension {
		n.repairs++
		n.logger.Warn("Capture below minimum dimensions, substituting fallback image",
			zap.Int("width", bounds.Dx()), zap.Int("height", bounds.Dy()))
		return Fallback()
	}

	// Valid input passes through byte-identical: normalization is idempotent.
	return img
}

// repair decodes with any registered format, converts to RGBA and re-encodes
// as PNG. Falls back to the deterministic image when decoding fails outright.
func (n *Normalizer) repair(raw []byte) []byte {
	decoded, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		n.logger.Warn("Image repair failed, substituting fallback image", zap.Error(err))
		return Fallback()
	}

	bounds := decoded.Bounds()
	if bounds.Dx() < minDimension || bounds.Dy() < minDimension {
		n.logger.Warn("Repaired image below minimum dimensions, substituting fallback image")
		return Fallback()
	}

	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, decoded, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		n.logger.Error("PNG re-encode failed, substituting fallback image", zap.Error(err))
		return Fallback()
	}

	n.logger.Info("Repaired screenshot",
		zap.String("source_format", format),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()))
	return buf.Bytes()
}

// Fallback returns a white PNG at the grounding model's expected resolution.
func Fallback() []byte {
	img := image.NewRGBA(image.Rect(0, 0, fallbackWidth, fallbackHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	var buf bytes.Buffer
	// Encoding an in-memory RGBA cannot fail.
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
