package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/observability"
)

var (
	ErrInvalidPath = errors.New("invalid file path")
	ErrNotFound    = errors.New("file not found")
	uploadsSegment = regexp.MustCompile(`/uploads/([^?]+)`)
)

// Signer mints time-limited V4 GET URLs for objects in one bucket.
type Signer struct {
	client *storage.Client
	bucket *storage.BucketHandle
	cfg    config.StorageConfig
	logger *zap.Logger
}

func NewSigner(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Signer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket not configured")
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	logger.Info("storage signer ready", zap.String("bucket", cfg.Bucket))

	return &Signer{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Sign returns a signed URL for the object at path. path may be a stored
// object name or a full storage URL; see CleanPath.
func (s *Signer) Sign(ctx context.Context, path string) (string, error) {
	_, span := observability.StartSpan(ctx, "storage.sign")
	defer span.End()

	object, err := CleanPath(path)
	if err != nil {
		return "", err
	}

	signed, err := s.bucket.SignedURL(object, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.cfg.SignedURLTTL),
	})
	if err != nil {
		return "", fmt.Errorf("signing %s: %w", object, err)
	}
	return signed, nil
}

// Exists reports whether the object is present in the bucket.
func (s *Signer) Exists(ctx context.Context, object string) (bool, error) {
	ctx, span := observability.StartSpan(ctx, "storage.exists",
		attribute.String("storage.object", object),
	)
	defer span.End()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	_, err := s.bucket.Object(object).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", object, err)
	}
	return true, nil
}

// SignExisting is Sign preceded by an existence check. It returns ErrNotFound
// when the object is missing.
func (s *Signer) SignExisting(ctx context.Context, path string) (string, error) {
	object, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	ok, err := s.Exists(ctx, object)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, object)
	}
	return s.Sign(ctx, object)
}

func (s *Signer) HealthCheck(ctx context.Context) error {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	if _, err := s.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("storage health check: %w", err)
	}
	return nil
}

func (s *Signer) Close() error {
	return s.client.Close()
}

// CleanPath turns a raw, possibly URL-encoded path into an object name. Full
// URLs are reduced to their uploads/... segment.
func CleanPath(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "undefined" || raw == "null" {
		return "", ErrInvalidPath
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	clean := decoded
	if strings.HasPrefix(decoded, "http") {
		m := uploadsSegment.FindStringSubmatch(decoded)
		if m == nil {
			return "", fmt.Errorf("%w: missing /uploads/ segment", ErrInvalidPath)
		}
		clean = "uploads/" + m[1]
	}

	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || strings.Contains(clean, "undefined") {
		return "", ErrInvalidPath
	}
	return clean, nil
}
