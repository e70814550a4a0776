package openaicompat

import (
	"context"
	"net/http"
	"strings"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// transport applies the custom header template and records response
// metadata that go-openai does not expose.
type transport struct {
	base    http.RoundTripper
	headers map[string]string
}

// responseMeta is filled in by transport for the request carrying it.
type responseMeta struct {
	status     int
	retryAfter string
}

type metaKey struct{}

func withResponseMeta(ctx context.Context) (context.Context, *responseMeta) {
	meta := &responseMeta{}
	return context.WithValue(ctx, metaKey{}, meta), meta
}

// RoundTrip implements http.RoundTripper.
func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		req = req.Clone(req.Context())
		req.Header.Del("Authorization")
		for k, v := range t.headers {
			req.Header.Set(k, v)
		}
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if meta, ok := req.Context().Value(metaKey{}).(*responseMeta); ok {
		meta.status = resp.StatusCode
		meta.retryAfter = resp.Header.Get("Retry-After")
	}
	return resp, nil
}

// expandHeaders substitutes the key into the header template.
func expandHeaders(template map[string]string, apiKey string) map[string]string {
	if len(template) == 0 {
		return nil
	}
	out := make(map[string]string, len(template))
	for k, v := range template {
		out[k] = strings.ReplaceAll(v, domain.APIKeyPlaceholder, apiKey)
	}
	return out
}
