package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
)

// Backend names accepted in configuration.
const (
	BackendS3         = "s3"
	BackendFilesystem = "filesystem"
)

// Names of the auxiliary artifacts stored next to a trained model.
const (
	NeighborhoodEncoder = "NEIGHBORHOOD_ENCODER"
	OneHotEncoder       = "ONE_HOT_ENCODER"
	XMinMax             = "X_MIN_MAX"
	YMinMax             = "Y_MIN_MAX"
)

var (
	// ErrNotFound is returned when no artifact exists at a path
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidPath is returned for empty, absolute or escaping paths
	ErrInvalidPath = errors.New("invalid artifact path")
)

// Store persists artifact blobs under slash-separated relative paths.
type Store interface {
	// Write stores blob at p and returns the path it can be read back from.
	Write(ctx context.Context, p string, blob []byte) (string, error)
	Read(ctx context.Context, p string) ([]byte, error)
}

// Config holds artifact storage configuration
type Config struct {
	Backend      string
	BaseDir      string
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// New opens the store selected by cfg.Backend.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3Store(ctx, cfg, logger)
	case BackendFilesystem, "":
		return NewFileStore(cfg.BaseDir, logger)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
	}
}

// ModelPath returns the path of a model's serialized network.
func ModelPath(modelID int64, at time.Time) string {
	return fmt.Sprintf("GWO/GWO_%d_%s.json", modelID, stamp(at))
}

// EncoderPath returns the path of one of a model's auxiliary artifacts.
func EncoderPath(name string, modelID int64, at time.Time) string {
	return fmt.Sprintf("Encoders/%s_%d_%s.json", name, modelID, stamp(at))
}

func stamp(at time.Time) string {
	return at.UTC().Format("20060102T150405")
}

func cleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}
