package parser

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/nfnt/resize"
)

// ImageCompressor writes a cropped RGB frame to a thumbnail file. The host
// may provide its own; JpegCompressor is the default.
type ImageCompressor interface {
	// Extension is the file extension the compressor produces, without
	// the dot.
	Extension() string
	// Compress center-crops the frame to cropWidth x cropHeight and
	// writes it to path.
	Compress(frame Frame, path string, cropWidth, cropHeight int) error
}

// JpegCompressor encodes thumbnails with the standard JPEG encoder after a
// center crop. A frame smaller than the crop in either dimension is
// resized to the crop size instead.
type JpegCompressor struct {
	Quality int
}

// NewJpegCompressor returns a compressor with the default quality.
func NewJpegCompressor() *JpegCompressor {
	return &JpegCompressor{Quality: 85}
}

func (c *JpegCompressor) Extension() string { return "jpg" }

// Compress implements ImageCompressor.
func (c *JpegCompressor) Compress(frame Frame, path string, cropWidth, cropHeight int) error {
	if len(frame.RGB) < frame.Width*frame.Height*3 {
		return fmt.Errorf("short frame buffer: %d bytes for %dx%d", len(frame.RGB), frame.Width, frame.Height)
	}

	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			src := (y*frame.Width + x) * 3
			dst := img.PixOffset(x, y)
			img.Pix[dst] = frame.RGB[src]
			img.Pix[dst+1] = frame.RGB[src+1]
			img.Pix[dst+2] = frame.RGB[src+2]
			img.Pix[dst+3] = 0xff
		}
	}

	var out image.Image = img
	if frame.Width < cropWidth || frame.Height < cropHeight {
		out = resize.Resize(uint(cropWidth), uint(cropHeight), img, resize.Bilinear)
	} else if frame.Width != cropWidth || frame.Height != cropHeight {
		x0 := (frame.Width - cropWidth) / 2
		y0 := (frame.Height - cropHeight) / 2
		out = img.SubImage(image.Rect(x0, y0, x0+cropWidth, y0+cropHeight))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail: %w", err)
	}
	defer f.Close()

	quality := c.Quality
	if quality <= 0 {
		quality = 85
	}
	if err := jpeg.Encode(f, out, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return nil
}

// WriteArtwork dumps embedded artwork bytes verbatim; the container
// already holds a compressed image.
func WriteArtwork(data []byte, path string) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artwork: %w", err)
	}
	return nil
}
