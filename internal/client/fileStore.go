package client

import (
	"context"
	"errors"
	"fmt"
	"marketplace-settlement/internal/config"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrFileStore    = errors.New("file store request failed")
)

type File struct {
	Content     []byte
	ContentType string
}

// FileStore fetches purchased files from object storage. Keys are either
// object paths relative to the storage base URL or absolute URLs.
type FileStore interface {
	Fetch(ctx context.Context, key string) (*File, error)
}

type fileStoreImpl struct {
	http    *resty.Client
	baseURL string
}

func NewFileStore(cfg *config.Storage) FileStore {
	httpClient := resty.New().SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	return &fileStoreImpl{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (s *fileStoreImpl) Fetch(ctx context.Context, key string) (*File, error) {
	if key == "" {
		return nil, ErrFileNotFound
	}

	resp, err := s.http.R().
		SetContext(ctx).
		Get(s.resolve(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileStore, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
	case resp.IsError():
		return nil, fmt.Errorf("%w: status=%d", ErrFileStore, resp.StatusCode())
	}

	return &File{
		Content:     resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}

func (s *fileStoreImpl) resolve(key string) string {
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}
