package blobstore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Lookup fetches JSON documents by name. A missing document is (nil, nil).
type Lookup interface {
	GetDocument(ctx context.Context, name string) (map[string]any, error)
}

// HTTPLookup reads documents from a blob container exposed over HTTP.
type HTTPLookup struct {
	HTTP *resty.Client
}

func NewHTTPLookup(baseURL string, timeout time.Duration) *HTTPLookup {
	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetTimeout(timeout)
	r.SetHeader("Accept", "application/json")
	return &HTTPLookup{HTTP: r}
}

func (l *HTTPLookup) GetDocument(ctx context.Context, name string) (map[string]any, error) {
	if name == "" {
		return nil, nil
	}

	var doc map[string]any
	resp, err := l.HTTP.R().
		SetContext(ctx).
		SetPathParam("name", name).
		SetResult(&doc).
		Get("/documents/{name}")
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", name, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch document %s: status %d", name, resp.StatusCode())
	}
	return doc, nil
}

// MapLookup serves documents from memory.
type MapLookup map[string]map[string]any

func (m MapLookup) GetDocument(_ context.Context, name string) (map[string]any, error) {
	doc, ok := m[name]
	if !ok {
		return nil, nil
	}
	return doc, nil
}
