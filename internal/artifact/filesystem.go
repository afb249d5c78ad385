package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore keeps artifacts on the local filesystem under a base directory.
type FileStore struct {
	baseDir string
	logger  *slog.Logger
}

// NewFileStore creates the base directory if needed.
func NewFileStore(baseDir string, logger *slog.Logger) (*FileStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("artifact base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &FileStore{baseDir: baseDir, logger: logger}, nil
}

func (s *FileStore) Write(ctx context.Context, p string, blob []byte) (string, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.baseDir, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(full, blob, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", cleaned, err)
	}

	s.logger.Debug("Artifact written",
		slog.String("path", cleaned),
		slog.Int("bytes", len(blob)),
	)
	return cleaned, nil
}

func (s *FileStore) Read(ctx context.Context, p string) ([]byte, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(filepath.Join(s.baseDir, filepath.FromSlash(cleaned)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", cleaned, err)
	}
	return blob, nil
}
