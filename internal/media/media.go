// Package media stores listing photos and their thumbnails, on local disk or
// in an S3-compatible bucket.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	MaxUploadSize = 10 << 20

	thumbWidth  = 400
	thumbHeight = 300
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file is too large")
	ErrInvalidKey      = errors.New("invalid object key")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Object is a stored file. ThumbnailURL is empty when no thumbnail could be
// made, e.g. for formats imaging cannot decode.
type Object struct {
	Key          string `json:"key"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// Storage saves and removes files. Delete also removes the thumbnail and
// does not fail when the object is already gone.
type Storage interface {
	Save(ctx context.Context, name, contentType string, data []byte) (Object, error)
	Delete(ctx context.Context, key string) error
}

// Validate checks size and type before anything is written.
func Validate(contentType string, size int) error {
	if size > MaxUploadSize {
		return ErrTooLarge
	}
	if _, ok := allowedTypes[baseType(contentType)]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return nil
}

func baseType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// newKey returns a unique flat object name that keeps the upload's
// extension, or falls back to one derived from the content type.
func newKey(name, contentType string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || len(ext) > 5 {
		ext = allowedTypes[baseType(contentType)]
	}
	return uuid.New().String() + ext
}

// thumbName is the object name of a key's thumbnail.
func thumbName(key string) string {
	return "thumb_" + strings.TrimSuffix(key, filepath.Ext(key)) + ".jpg"
}

// Thumbnail crops and scales an image to 400x300 and encodes it as JPEG.
func Thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := imaging.Fill(img, thumbWidth, thumbHeight, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
