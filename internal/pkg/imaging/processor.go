package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// MaxFileSize in bytes (8MB)
const MaxFileSize int64 = 8 * 1024 * 1024

// ProcessedImage contains the variants stored for a menu item
type ProcessedImage struct {
	Original    []byte
	Thumbnail   []byte
	ContentType string
	Ext         string
	Width       int
	Height      int
}

// Config for image processing
type Config struct {
	MaxSide   int // longest side of the stored original
	ThumbSide int // square thumbnail edge
	Quality   int // JPEG quality 1-100
}

// DefaultConfig returns default processing config for menu photos
func DefaultConfig() Config {
	return Config{
		MaxSide:   1600,
		ThumbSide: 400,
		Quality:   85,
	}
}

// Processor handles image processing
type Processor struct {
	config Config
}

// NewProcessor creates image processor
func NewProcessor(config Config) *Processor {
	return &Processor{config: config}
}

// Process downsizes the image if needed and cuts a square thumbnail.
// PNG stays PNG to keep transparency; everything else is re-encoded as JPEG.
func (p *Processor) Process(reader io.Reader) (*ProcessedImage, error) {
	data, err := io.ReadAll(io.LimitReader(reader, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, fmt.Errorf("image exceeds %d bytes", MaxFileSize)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	resized := img
	b := img.Bounds()
	if b.Dx() > p.config.MaxSide || b.Dy() > p.config.MaxSide {
		resized = imaging.Fit(img, p.config.MaxSide, p.config.MaxSide, imaging.Lanczos)
	}
	thumb := imaging.Fill(img, p.config.ThumbSide, p.config.ThumbSide, imaging.Center, imaging.Lanczos)

	result := &ProcessedImage{
		ContentType: "image/jpeg",
		Ext:         ".jpg",
		Width:       resized.Bounds().Dx(),
		Height:      resized.Bounds().Dy(),
	}
	if format == "png" {
		result.ContentType = "image/png"
		result.Ext = ".png"
	}

	if result.Original, err = p.encode(resized, format); err != nil {
		return nil, fmt.Errorf("failed to encode original: %w", err)
	}
	if result.Thumbnail, err = p.encode(thumb, format); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return result, nil
}

// ValidateType checks if file is a valid image type
func ValidateType(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		return true
	default:
		return false
	}
}

func (p *Processor) encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.config.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GeneratePaths returns storage keys for a product image. Keys are versioned
// so a re-upload never collides with a CDN-cached object.
func GeneratePaths(productID uuid.UUID, ext string, at time.Time) (original, thumb string) {
	version := at.UTC().Format("20060102150405")
	original = fmt.Sprintf("products/%s/%s%s", productID, version, ext)
	thumb = fmt.Sprintf("products/%s/%s_thumb%s", productID, version, ext)
	return
}
