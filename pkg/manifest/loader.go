// Package manifest implements the Manifest Loader (spec.md §4.2, component
// C2): it fetches an action's starthub-lock.json from the registry and
// decodes it into an *action.Manifest. Unlike the Artifact Cache, manifest
// fetches have no mirror fallback (spec.md §4.2) — mirrors exist only for
// binary leaf artifacts. Grounded on the registry-fetch shape in
// original_source/src/starthub_api.rs, translated from reqwest's blocking
// client calls to Go's net/http with an explicit context.
package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/starthub-run/runtime/pkg/action"
)

// Loader fetches manifests from a single registry host.
type Loader struct {
	BaseURL string
	Client  *http.Client
}

// NewLoader creates a Loader against baseURL (e.g. "https://registry.starthub.run").
// If client is nil, http.DefaultClient is used.
func NewLoader(baseURL string, client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

// Load fetches and decodes the manifest for ref.
func (l *Loader) Load(ctx context.Context, ref action.Reference) (*action.Manifest, error) {
	url := fmt.Sprintf("%s/artifacts/%s/%s/%s/starthub-lock.json", l.BaseURL, ref.Namespace, ref.Slug, ref.Version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, action.InternalError("building manifest request for %s: %v", ref.String(), err)
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, action.ManifestNotFound(ref.String())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, action.ManifestNotFound(ref.String())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, action.ManifestMalformed(ref.String(), fmt.Errorf("http status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, action.ManifestMalformed(ref.String(), err)
	}

	m, err := action.ParseManifest(data)
	if err != nil {
		return nil, action.ManifestMalformed(ref.String(), err)
	}
	return m, nil
}
