package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mindmed/mindmed-api/internal/models"
)

// MaxImageSize is the largest accepted branding image.
const MaxImageSize = 5 * 1024 * 1024

var ErrInvalidImage = errors.New("invalid image")

// allowed content types and the extension used for their keys
var imageTypes = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/svg+xml": "svg",
	"image/webp":    "webp",
}

// Storage defines the interface for file storage operations
type Storage interface {
	// Put stores data under bucket/key and returns its public URL
	Put(ctx context.Context, bucket, key, contentType string, data []byte) (string, error)

	// Delete removes a file from storage
	Delete(ctx context.Context, bucket, key string) error
}

// ValidateImage checks the declared content type and size of an upload and
// returns the file extension to store it with. Raster formats must also
// match their sniffed type.
func ValidateImage(contentType string, data []byte) (string, error) {
	contentType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	ext, ok := imageTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported type %q, use PNG, JPEG, SVG or WEBP", ErrInvalidImage, contentType)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrInvalidImage)
	}
	if len(data) > MaxImageSize {
		return "", fmt.Errorf("%w: file exceeds %d MB", ErrInvalidImage, MaxImageSize/1024/1024)
	}
	if ext != "svg" {
		if sniffed := http.DetectContentType(data); sniffed != contentType {
			return "", fmt.Errorf("%w: content is %s, declared %s", ErrInvalidImage, sniffed, contentType)
		}
	}
	return ext, nil
}

// ImageKey builds "{userID}/{unix-millis}.{ext}".
func ImageKey(userID string, now time.Time, ext string) string {
	return fmt.Sprintf("%s/%d.%s", userID, now.UnixMilli(), ext)
}

// UploadImage validates and stores a branding image for userID, returning
// its public URL.
func UploadImage(ctx context.Context, s Storage, userID string, kind models.ImageKind, contentType string, data []byte, now time.Time) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown image kind %q", ErrInvalidImage, kind)
	}
	ext, err := ValidateImage(contentType, data)
	if err != nil {
		return "", err
	}
	return s.Put(ctx, kind.Bucket(), ImageKey(userID, now, ext), contentType, data)
}
