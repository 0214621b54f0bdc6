// Package imaging turns a client-drawn digit into the 28x28 normalized tensor
// a digit classifier expects.
//
// The pipeline mirrors the MNIST preprocessing the classifiers were trained
// with: grayscale, crop to the ink, pad to a centered square, resize to 28x28
// and normalize with the MNIST mean and standard deviation.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"net/url"
	"strings"

	// supported upload formats
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrMalformedPayload = errors.New("imaging: malformed data URI payload")
	ErrUnreadableImage  = errors.New("imaging: payload is not a supported image")
)

const (
	// InkThreshold is the gray level below which a pixel counts as ink.
	InkThreshold = 200

	// Padding is the total whitespace added around the ink bounding box,
	// split evenly between opposite sides.
	Padding = 20

	// MaxDimension bounds either side of an uploaded image.
	MaxDimension = 4096

	Background = 255
)

// Normalized is the outcome of running a payload through the pipeline.
type Normalized struct {
	// Centered is the cropped, padded and squared image before resizing.
	Centered *image.Gray
	Tensor   *Tensor
	Format   string
}

// FromDataURI decodes a "<scheme>,<payload>" data URI and normalizes it.
func FromDataURI(payload string) (*Normalized, error) {
	raw, err := DecodeDataURI(payload)
	if err != nil {
		return nil, err
	}

	img, format, err := DecodeImage(raw)
	if err != nil {
		return nil, err
	}

	centered := Center(Grayscale(img))

	return &Normalized{
		Centered: centered,
		Tensor:   NewTensor(Resize(centered)),
		Format:   format,
	}, nil
}

// isBase64 reports whether a data URI header ends in ";base64", in any case.
func isBase64(header string) bool {
	const marker = ";base64"
	return len(header) >= len(marker) && strings.EqualFold(header[len(header)-len(marker):], marker)
}

// DecodeDataURI splits payload on its first comma and decodes the data part,
// as base64 when the header says so and percent-encoded otherwise.
func DecodeDataURI(payload string) ([]byte, error) {
	header, data, ok := strings.Cut(payload, ",")
	if !ok {
		return nil, fmt.Errorf("%w: no ',' between header and data", ErrMalformedPayload)
	}

	if !isBase64(header) {
		result, err := url.PathUnescape(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		return []byte(result), nil
	}

	// browsers sometimes drop the trailing '=' when building data URIs by hand
	data = strings.TrimRight(strings.TrimSpace(data), "=")
	result, err := base64.RawStdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}

	return result, nil
}

// DecodeImage decodes any registered raster format.
func DecodeImage(raw []byte) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrUnreadableImage, err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxDimension || cfg.Height > MaxDimension {
		return nil, format, fmt.Errorf("%w: %s image is %dx%d", ErrUnreadableImage, format, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %w", ErrUnreadableImage, err)
	}

	return img, format, nil
}

// Grayscale converts img to 8-bit luma. Translucent pixels are composited
// over a white background first, so a canvas export with a transparent
// background reads as white paper rather than black.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()], g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			// premultiplied, so compositing over white adds the missing coverage
			r += 0xffff - a
			g += 0xffff - a
			bl += 0xffff - a

			dst.SetGray(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(color.RGBA64{
				R: uint16(r),
				G: uint16(g),
				B: uint16(bl),
				A: 0xffff,
			}).(color.Gray))
		}
	}

	return dst
}

// Center crops img to its ink, adds Padding and pads the result to a square
// with the ink in the middle. Images that are entirely black or contain no
// ink are returned unchanged.
func Center(img *image.Gray) *image.Gray {
	b := img.Bounds()

	var maxVal uint8
	x0, y0, x1, y1 := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := img.GrayAt(x, y).Y
			maxVal = max(maxVal, v)
			if v >= InkThreshold {
				continue
			}
			x0, y0 = min(x0, x), min(y0, y)
			x1, y1 = max(x1, x), max(y1, y)
		}
	}

	if maxVal == 0 || x1 < x0 {
		return img
	}

	// bounding box is inclusive above, make it half-open
	x1++
	y1++

	border := Padding / 2
	w := (x1 - x0) + 2*border
	h := (y1 - y0) + 2*border
	side := max(w, h)

	dst := image.NewGray(image.Rect(0, 0, side, side))
	for i := range dst.Pix {
		dst.Pix[i] = Background
	}

	offX := (side-w)/2 + border
	offY := (side-h)/2 + border

	for y := y0; y < y1; y++ {
		srcRow := img.Pix[img.PixOffset(x0, y):img.PixOffset(x1-1, y)+1]
		copy(dst.Pix[dst.PixOffset(offX, offY+(y-y0)):], srcRow)
	}

	return dst
}
