package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Model is one entry of the upstream model catalog.
type Model struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Meta json.RawMessage `json:"meta,omitempty"`
}

// ImageURL extracts the catalog profile image, when present.
func (m *Model) ImageURL() string {
	if len(m.Meta) == 0 {
		return ""
	}
	var meta struct {
		ProfileImageURL string `json:"profile_image_url"`
	}
	if errUnmarshal := json.Unmarshal(m.Meta, &meta); errUnmarshal != nil {
		return ""
	}
	return meta.ProfileImageURL
}

// Client fetches the model catalog from an open-webui instance.
type Client struct {
	domain string
	apiKey string
	client *http.Client
}

// NewClient constructs a catalog client. domain is the open-webui base URL.
func NewClient(domain, apiKey string) *Client {
	return &Client{
		domain: strings.TrimRight(strings.TrimSpace(domain), "/"),
		apiKey: strings.TrimSpace(apiKey),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether an upstream domain is set.
func (c *Client) Configured() bool {
	return c != nil && c.domain != ""
}

// upstreamModel mirrors open-webui's /api/models entries.
type upstreamModel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Info struct {
		Meta json.RawMessage `json:"meta"`
	} `json:"info"`
}

// Models lists the upstream catalog.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("catalog: upstream domain not configured")
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, c.domain+"/api/models", nil)
	if errReq != nil {
		return nil, fmt.Errorf("catalog: build request: %w", errReq)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, errDo := c.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("catalog: fetch models: %w", errDo)
	}
	defer resp.Body.Close()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if errRead != nil {
		return nil, fmt.Errorf("catalog: read response: %w", errRead)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: upstream status %d", resp.StatusCode)
	}

	var payload struct {
		Data []upstreamModel `json:"data"`
	}
	if errUnmarshal := json.Unmarshal(body, &payload); errUnmarshal != nil {
		return nil, fmt.Errorf("catalog: decode response: %w", errUnmarshal)
	}

	out := make([]Model, 0, len(payload.Data))
	for _, item := range payload.Data {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = id
		}
		out = append(out, Model{ID: id, Name: name, Meta: item.Info.Meta})
	}
	return out, nil
}
