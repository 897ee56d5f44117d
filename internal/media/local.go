package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes files into Dir, which the router serves under
// /uploads.
type LocalStorage struct {
	Dir     string
	BaseURL string
	log     *slog.Logger
}

func NewLocalStorage(dir, baseURL string, log *slog.Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStorage{
		Dir:     dir,
		BaseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With("component", "LocalStorage"),
	}, nil
}

func (s *LocalStorage) Save(_ context.Context, name, contentType string, data []byte) (Object, error) {
	key := newKey(name, contentType)
	if err := os.WriteFile(filepath.Join(s.Dir, key), data, 0o644); err != nil {
		return Object{}, fmt.Errorf("failed to save file: %w", err)
	}
	obj := Object{Key: key, URL: s.url(key)}

	thumb, err := Thumbnail(data)
	if err != nil {
		s.log.Warn("Skipping thumbnail", "key", key, "error", err)
		return obj, nil
	}
	if err := os.WriteFile(filepath.Join(s.Dir, thumbName(key)), thumb, 0o644); err != nil {
		s.log.Warn("Failed to save thumbnail", "key", key, "error", err)
		return obj, nil
	}
	obj.ThumbnailURL = s.url(thumbName(key))
	return obj, nil
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	if key == "" || filepath.Base(key) != key || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, name := range []string{key, thumbName(key)} {
		if err := os.Remove(filepath.Join(s.Dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", name, err)
		}
	}
	return nil
}

func (s *LocalStorage) url(name string) string {
	return fmt.Sprintf("%s/uploads/%s", s.BaseURL, name)
}
