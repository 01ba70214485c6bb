// Package imaging normalizes intake photos before they are stored or sent
// to the model: the format is sniffed from the bytes, oversized photos are
// scaled down, and everything is re-encoded as JPEG.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxDimension is the default bound for the longer side of a photo.
	MaxDimension = 1024
	// JPEGQuality is the compression quality for JPEG output.
	JPEGQuality = 85
	// MaxInputBytes caps how much of an upload is read.
	MaxInputBytes = 20 << 20
)

// ErrUnsupported is returned for inputs that are not JPEG, PNG or WebP.
var ErrUnsupported = errors.New("unsupported image format")

// AllowedMIME lists the accepted input MIME types.
var AllowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Result holds a normalized photo.
type Result struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Process reads a photo, validates its format by sniffing bytes, downscales
// it so neither side exceeds maxDim, and re-encodes it as JPEG. A maxDim of
// zero or less uses MaxDimension.
func Process(r io.Reader, maxDim int) (*Result, error) {
	if maxDim <= 0 {
		maxDim = MaxDimension
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnsupported)
	}
	if len(data) > MaxInputBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", MaxInputBytes)
	}

	// Client headers are not trusted.
	detected := http.DetectContentType(data)
	if !AllowedMIME[detected] {
		return nil, fmt.Errorf("%w: %s (JPEG, PNG or WebP accepted)", ErrUnsupported, detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	img = downscale(img, maxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	b := img.Bounds()
	return &Result{
		Data:   buf.Bytes(),
		MIME:   "image/jpeg",
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// downscale resizes img with Catmull-Rom so neither side exceeds maxDim,
// preserving aspect ratio. Images already within bounds are returned as is.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}
	newW = max(newW, 1)
	newH = max(newH, 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
