package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/config"
	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/domain/repository"
	"github.com/openkaarten-service/internal/pkg/errors"
)

// ключи оберток JSON API вида {"data": [...]}
var envelopeKeys = []string{"data", "results", "items"}

type fetcher struct {
	httpClient *http.Client
	filesDir   string
	maxBytes   int64
	maxRetries int
	retryDelay time.Duration
	userAgent  string
	logger     *zap.Logger
}

// NewSourceFetcher создает загрузчик источников датасетов
func NewSourceFetcher(cfg *config.FetchConfig, logger *zap.Logger) repository.SourceFetcher {
	return &fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		filesDir:   cfg.FilesDir,
		maxBytes:   cfg.MaxBytes,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		userAgent:  cfg.UserAgent,
		logger:     logger,
	}
}

// Fetch возвращает содержимое источника. Любая ошибка - FETCH_FAILED.
func (f *fetcher) Fetch(ctx context.Context, ds *domain.Dataset) ([]byte, error) {
	var (
		body []byte
		err  error
	)

	switch ds.SourceKind {
	case domain.SourceFile:
		body, err = f.readFile(ds.SourceRef)
	case domain.SourceURL:
		body, err = f.getWithRetry(ctx, ds.SourceRef)
	default:
		err = fmt.Errorf("unknown source kind %q", ds.SourceKind)
	}
	if err != nil {
		f.logger.Warn("Failed to fetch dataset source",
			zap.Int64("dataset_id", ds.ID),
			zap.String("source", ds.SourceRef),
			zap.Error(err))
		return nil, errors.NewFetchError(ds.SourceRef, err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.NewFetchError(ds.SourceRef, fmt.Errorf("empty body"))
	}

	return unwrapEnvelope(body), nil
}

func (f *fetcher) readFile(ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("no file attached")
	}

	root, err := filepath.Abs(f.filesDir)
	if err != nil {
		return nil, fmt.Errorf("invalid files dir: %w", err)
	}
	path := filepath.Join(root, filepath.Clean("/"+ref))
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return nil, fmt.Errorf("file %q is outside the files dir", ref)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return f.readLimited(file)
}

func (f *fetcher) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			f.logger.Debug("Retrying source fetch",
				zap.String("url", url),
				zap.Int("attempt", attempt+1))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		body, retry, err := f.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, lastErr
}

// get выполняет один запрос; bool - имеет ли смысл повтор
func (f *fetcher) get(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.logger.Debug("Fetching dataset source", zap.String("url", url))

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	body, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return body, false, nil
}

func (f *fetcher) readLimited(r io.Reader) ([]byte, error) {
	if f.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("source exceeds %d bytes", f.maxBytes)
	}
	return body, nil
}

// unwrapEnvelope достает массив записей из обертки {"data": [...]}.
// GeoJSON и все остальное возвращается без изменений.
func unwrapEnvelope(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return body
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return body
	}
	if _, ok := obj["type"]; ok {
		return body
	}
	for _, k := range envelopeKeys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		inner := bytes.TrimSpace(raw)
		if len(inner) > 0 && inner[0] == '[' {
			return inner
		}
	}
	return body
}
