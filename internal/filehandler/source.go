// Package filehandler loads source photos from the assets directory.
//
// Images are read whole because the interpreter embeds them inline as base64.
// The editor re-opens the file through OpenSourceImage so each stage works from
// its own stream.
package filehandler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// SupportedImageExtensions maps known image extensions to MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// MissingAssetError reports a source image that does not exist.
type MissingAssetError struct {
	Path string
}

func (e *MissingAssetError) Error() string {
	return "image not found: " + e.Path
}

// IsMissingAsset reports whether err is (or wraps) a MissingAssetError.
func IsMissingAsset(err error) bool {
	var missing *MissingAssetError
	return errors.As(err, &missing)
}

// SourceImage is a photo read from the assets directory.
type SourceImage struct {
	// Path is the full path on disk.
	Path string
	// Name is the base filename, reused for the output file.
	Name     string
	MIMEType string
	Data     []byte

	// Width and Height are zero when the format could not be probed.
	Width  int
	Height int

	// Metadata is nil when the image carries no readable EXIF block.
	Metadata *ImageMetadata
}

// ResolvePath joins the assets directory and an image filename.
func ResolvePath(assetsDir, name string) string {
	return filepath.Join(assetsDir, name)
}

// CheckExists returns a *MissingAssetError when path does not exist or is a directory.
func CheckExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &MissingAssetError{Path: path}
		}
		return fmt.Errorf("failed to stat image: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not an image: %s", path)
	}
	return nil
}

// LoadSourceImage reads the image at path into memory.
func LoadSourceImage(path string) (*SourceImage, error) {
	if err := CheckExists(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	img := &SourceImage{
		Path:     path,
		Name:     filepath.Base(path),
		MIMEType: DetectMIMEType(path, data),
		Data:     data,
	}
	img.describe(bytes.NewReader(data))

	return img, nil
}

// OpenSourceImage opens a fresh read stream over the image at path.
func OpenSourceImage(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingAssetError{Path: path}
		}
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return f, nil
}

// GetMIMEType returns the MIME type for a given file extension.
func GetMIMEType(ext string) (string, error) {
	ext = strings.ToLower(ext)
	if mimeType, ok := SupportedImageExtensions[ext]; ok {
		return mimeType, nil
	}
	return "", fmt.Errorf("unsupported image extension: %s", ext)
}

// DetectMIMEType resolves the MIME type from the extension, falling back to
// content sniffing and finally to image/png.
func DetectMIMEType(path string, data []byte) string {
	if mimeType, err := GetMIMEType(filepath.Ext(path)); err == nil {
		return mimeType
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return "image/png"
}

// IsImage reports whether ext is a known image extension.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}
