package imaging

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/inkwell-labs/scribble/internal"
	"golang.org/x/image/draw"
)

const (
	Side = 28

	// MNIST training set statistics
	Mean = 0.1307
	Std  = 0.3081
)

// Tensor is a single-channel image batch of one, laid out (N, C, H, W).
type Tensor [1][1][Side][Side]float32

// Shape reports the tensor dimensions.
func (t *Tensor) Shape() [4]int {
	return [4]int{1, 1, Side, Side}
}

// Flat returns the pixels in row-major order.
func (t *Tensor) Flat() []float32 {
	result := make([]float32, 0, Side*Side)
	for _, row := range t[0][0] {
		result = append(result, row[:]...)
	}
	return result
}

// Fingerprint is a short non-cryptographic hash of the tensor contents for
// correlating log lines.
func (t *Tensor) Fingerprint() string {
	buf := make([]byte, 0, Side*Side*4)
	for _, v := range t.Flat() {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return internal.FastHashBytes(buf)
}

// Resize scales img to Side x Side with bilinear interpolation.
func Resize(img *image.Gray) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, Side, Side))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// NewTensor normalizes a Side x Side gray image.
func NewTensor(img *image.Gray) *Tensor {
	var t Tensor
	for y := range Side {
		for x := range Side {
			v := float32(img.GrayAt(x, y).Y) / 255
			t[0][0][y][x] = (v - Mean) / Std
		}
	}
	return &t
}
