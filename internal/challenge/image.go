package challenge

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Tensor is an HxWxC pixel grid in BGR channel order with raw 0..255 values,
// matching how the model was trained.
type Tensor struct {
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Channels int       `json:"channels"`
	Data     []float32 `json:"data"`
}

// At returns the value at row y, column x, channel c.
func (t Tensor) At(x, y, c int) float32 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

// Preprocess decodes raw image bytes and scales them to width x height.
func Preprocess(raw []byte, width, height int) (Tensor, error) {
	if len(raw) == 0 {
		return Tensor{}, &DecodeError{Err: errors.New("empty image")}
	}
	if width <= 0 || height <= 0 {
		return Tensor{}, errors.New("model input size must be positive")
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Tensor{}, &DecodeError{Err: err}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	t := Tensor{Width: width, Height: height, Channels: 3, Data: make([]float32, width*height*3)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := dst.PixOffset(x, y)
			i := (y*width + x) * 3
			t.Data[i] = float32(dst.Pix[off+2])
			t.Data[i+1] = float32(dst.Pix[off+1])
			t.Data[i+2] = float32(dst.Pix[off])
		}
	}
	return t, nil
}
