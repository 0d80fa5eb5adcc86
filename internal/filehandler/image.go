package filehandler

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageMetadata holds the EXIF fields worth logging for a source photo.
type ImageMetadata struct {
	DateTaken   time.Time
	HasDate     bool
	CameraMake  string
	CameraModel string
}

// extractImageMetadata decodes EXIF from r. Date fallback chain:
// DateTimeOriginal > CreateDate > ModifyDate.
func extractImageMetadata(r io.ReadSeeker) (*ImageMetadata, error) {
	exifData, err := imagemeta.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	metadata := &ImageMetadata{}
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		metadata.DateTaken = exifData.DateTimeOriginal()
		metadata.HasDate = true
	case !exifData.CreateDate().IsZero():
		metadata.DateTaken = exifData.CreateDate()
		metadata.HasDate = true
	case !exifData.ModifyDate().IsZero():
		metadata.DateTaken = exifData.ModifyDate()
		metadata.HasDate = true
	}

	metadata.CameraMake = strings.TrimSpace(exifData.Make)
	metadata.CameraModel = strings.TrimSpace(exifData.Model)
	return metadata, nil
}

// probeDimensions reads just enough of the image header to report its size.
// PNG, JPEG, GIF, WebP and BMP decoders are registered.
func probeDimensions(r io.Reader) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, "", err
	}
	return cfg.Width, cfg.Height, format, nil
}

// describe logs what is known about a source image. Failures to read EXIF or
// dimensions are not errors: the remote models do their own validation.
func (s *SourceImage) describe(r io.ReadSeeker) {
	evt := log.Debug().Str("path", s.Path).Str("mime_type", s.MIMEType).Int("size_bytes", len(s.Data))

	if w, h, format, err := probeDimensions(r); err == nil {
		s.Width, s.Height = w, h
		evt = evt.Int("width", w).Int("height", h).Str("format", format)
	}

	if _, err := r.Seek(0, io.SeekStart); err == nil {
		if meta, err := extractImageMetadata(r); err == nil {
			s.Metadata = meta
			if meta.HasDate {
				evt = evt.Time("date_taken", meta.DateTaken)
			}
			if meta.CameraMake != "" || meta.CameraModel != "" {
				evt = evt.Str("camera", strings.TrimSpace(meta.CameraMake+" "+meta.CameraModel))
			}
		}
	}

	evt.Msg("Source image loaded")
}
