package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/services"
)

// PresignStore uploads artifacts with HTTP PUT under a presigned base URL.
// The endpoint is expected to accept run-scoped object keys appended to it;
// the worker holds no storage credentials of its own.
type PresignStore struct {
	endpoint string
	logger   *slog.Logger
	http     *http.Client
}

// NewPresign constructs a presigned-upload store.
func NewPresign(cfg *config.Config, logger *slog.Logger) *PresignStore {
	timeout := time.Duration(cfg.Storage.PresignTimeout) * time.Second
	return &PresignStore{
		endpoint: strings.TrimRight(cfg.Storage.PresignEndpoint, "/"),
		logger:   logging.NewComponentLogger(logger, "storage"),
		http:     &http.Client{Timeout: timeout},
	}
}

// Mode identifies this store in run records.
func (s *PresignStore) Mode() string { return ModePresign }

// Store PUTs the artifact to <endpoint>/<run-id>/<filename> with the content
// type derived from the extension. The response status decides success; the
// body is not interpreted.
func (s *PresignStore) Store(ctx context.Context, artifactPath, runID string) (StoreResult, error) {
	file, err := os.Open(artifactPath)
	if err != nil {
		return StoreResult{}, services.Wrap(services.ErrStorage, "storage", "presign", "open artifact", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return StoreResult{}, services.Wrap(services.ErrStorage, "storage", "presign", "stat artifact", err)
	}

	target := s.endpoint + "/" + url.PathEscape(runID) + "/" + url.PathEscape(filepath.Base(artifactPath))
	hasher := sha256.New()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, io.TeeReader(file, hasher))
	if err != nil {
		return StoreResult{}, services.Wrap(services.ErrStorage, "storage", "presign", "build upload request", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(artifactPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = info.Size()

	resp, err := s.http.Do(req)
	if err != nil {
		return StoreResult{}, services.Wrap(services.ErrStorage, "storage", "presign", "upload artifact", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StoreResult{}, services.Wrap(services.ErrStorage, "storage", "presign",
			fmt.Sprintf("upload rejected with status %d", resp.StatusCode), nil)
	}

	s.logger.Info("artifact uploaded",
		logging.String(logging.FieldRunID, runID),
		logging.String("url", target),
		logging.Int64("bytes", info.Size()),
		logging.String("content_type", contentType),
	)
	return StoreResult{
		Artifact: artifactPath,
		Location: target,
		Mode:     ModePresign,
		SHA256:   hex.EncodeToString(hasher.Sum(nil)),
		Size:     info.Size(),
	}, nil
}
