// Package render decodes uploads, draws detections and encodes the results.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// SupportedFormats lists the upload formats accepted by Decode.
var SupportedFormats = []string{"jpeg", "png", "bmp"}

// ErrEmptyUpload is returned for zero-length uploads.
var ErrEmptyUpload = errors.New("empty upload")

// DecodeError reports an upload that could not be turned into an RGB image.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("could not decode %s image: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("could not decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode reads a JPEG, PNG or BMP file into an opaque RGBA image with its
// origin at (0,0). Alpha is discarded, not composited.
func Decode(data []byte) (*image.RGBA, string, error) {
	if len(data) == 0 {
		return nil, "", &DecodeError{Err: ErrEmptyUpload}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, &DecodeError{Format: format, Err: err}
	}

	if !isSupported(format) {
		return nil, format, &DecodeError{Format: format, Err: fmt.Errorf("unsupported format, expected one of %v", SupportedFormats)}
	}

	if img.Bounds().Empty() {
		return nil, format, &DecodeError{Format: format, Err: errors.New("image has no pixels")}
	}

	return ToRGBA(img), format, nil
}

// ToRGBA returns a new opaque RGBA copy of img translated to the origin.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if opaqueSource(img) {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
	return dst
}

// opaqueSource reports whether img can be copied without dropping alpha.
func opaqueSource(img image.Image) bool {
	switch src := img.(type) {
	case *image.YCbCr, *image.Gray, *image.CMYK:
		return true
	case *image.RGBA:
		return src.Opaque()
	}
	return false
}

func isSupported(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}
