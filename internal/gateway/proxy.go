// Package gateway passes management CRUD traffic straight through to the
// remote store.
package gateway

import (
	"context"
	"net/http"
	"strings"
)

var forwardedHeaders = []string{"Content-Type", "Accept", "Authorization"}

type StoreProxy struct {
	baseURL string
	client  *http.Client
}

func NewStoreProxy(baseURL string, client *http.Client) *StoreProxy {
	return &StoreProxy{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Forward replays r against the store at path, keeping the query string.
func (p *StoreProxy) Forward(ctx context.Context, r *http.Request, path string) (*http.Response, error) {
	target := p.baseURL + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return nil, err
	}
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	return p.client.Do(req)
}
