package genai

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	_ "image/gif"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

// Downscale shrinks an image so neither edge exceeds maxSide, keeping the aspect ratio.
// Images already within bounds are returned untouched with an empty mime type.
// Resized output is JPEG unless the source was PNG.
func Downscale(data []byte, maxSide int) ([]byte, string, error) {
	if maxSide <= 0 {
		return data, "", nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= maxSide && cfg.Height <= maxSide {
		return data, "", nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	w, h := fitWithin(cfg.Width, cfg.Height, maxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, dst); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	}
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

func fitWithin(width, height, maxSide int) (int, int) {
	if width >= height {
		h := height * maxSide / width
		if h < 1 {
			h = 1
		}
		return maxSide, h
	}
	w := width * maxSide / height
	if w < 1 {
		w = 1
	}
	return w, maxSide
}
