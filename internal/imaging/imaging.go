// Package imaging holds the pixel-level helpers of the pipeline:
// face crops, embedder input normalization and JPEG plumbing.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// jpegQuality is used for snapshots and overlay dumps.
const jpegQuality = 85

// Crop cuts the boxed region out of img, widened by margin (a
// fraction of the box size on each side) and clamped to the frame.
// Returns nil when the box lies fully outside the frame.
func Crop(img image.Image, box image.Rectangle, margin float64) image.Image {
	if img == nil {
		return nil
	}

	mw := int(float64(box.Dx()) * margin)
	mh := int(float64(box.Dy()) * margin)
	r := image.Rect(box.Min.X-mw, box.Min.Y-mh, box.Max.X+mw, box.Max.Y+mh).Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Square stretches img to a size×size square, the fixed input shape
// embedding networks expect. CatmullRom keeps face details intact.
func Square(img image.Image, size int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() == size && bounds.Dy() == size {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// EncodeJPEG serializes img for the wire and for snapshot storage.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses JPEG or PNG bytes into an image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}
