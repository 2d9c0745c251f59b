package renderer

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"
)

// Downscale a supersampled frame to w x h using CatmullRom filtering.
func Downscale(img *image.RGBA, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Save a frame to disk. The encoder is selected by the file extension;
// .png and .webp are supported.
func SaveImage(img image.Image, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".png" && ext != ".webp" {
		return fmt.Errorf("renderer: unsupported image format %q", ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch ext {
	case ".png":
		err = png.Encode(f, img)
	case ".webp":
		err = nativewebp.Encode(f, img, nil)
	}
	if err != nil {
		return fmt.Errorf("renderer: could not encode %s: %w", path, err)
	}
	return nil
}
