package frames

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png" // placeholder files and ffmpeg output are PNG
	"os"

	"github.com/forPelevin/vidstamp/internal/types"
)

const (
	JPEGQuality = 90

	defaultPlaceholderW = 640
	defaultPlaceholderH = 360
)

// QuadrantRect returns the part of b covered by q, split at the integer
// midpoints of b. Odd sizes give the extra row/column to the second half.
func QuadrantRect(b image.Rectangle, q types.Quadrant) image.Rectangle {
	midX := b.Min.X + b.Dx()/2
	midY := b.Min.Y + b.Dy()/2
	switch q {
	case 1:
		return image.Rect(b.Min.X, b.Min.Y, midX, midY)
	case 2:
		return image.Rect(midX, b.Min.Y, b.Max.X, midY)
	case 3:
		return image.Rect(b.Min.X, midY, midX, b.Max.Y)
	case 4:
		return image.Rect(midX, midY, b.Max.X, b.Max.Y)
	default:
		return b
	}
}

// Crop copies the quadrant q of img into a new image anchored at (0,0).
func Crop(img image.Image, q types.Quadrant) *image.RGBA {
	src := QuadrantRect(img.Bounds(), q)
	dst := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	return dst
}

func EncodeJPEG(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("encode jpeg: empty image %dx%d", b.Dx(), b.Dy())
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// CropJPEG crops img to q and encodes the result.
func CropJPEG(img image.Image, q types.Quadrant) ([]byte, error) {
	return EncodeJPEG(Crop(img, q))
}

// Placeholder is the frame sent in place of one that could not be decoded.
func Placeholder(w, h int) image.Image {
	if w <= 0 || h <= 0 {
		w, h = defaultPlaceholderW, defaultPlaceholderH
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 128, G: 128, B: 128, A: 255}}, image.Point{}, draw.Src)
	return img
}

func Decode(b []byte) (image.Image, error) {
	if len(b) == 0 {
		return nil, errors.New("decode image: empty input")
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// LoadPlaceholder reads a user-supplied placeholder image.
func LoadPlaceholder(path string) (image.Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read placeholder: %w", err)
	}
	return Decode(b)
}
