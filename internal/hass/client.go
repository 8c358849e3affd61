// Package hass reads entity states from the Home Assistant REST API.
package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single state lookup
const DefaultTimeout = 3 * time.Second

// EntityState is the subset of /api/states/{id} the daemon uses
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

// Client fetches entity states. It is HTTP-only with no caching.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Home Assistant client.
// rateLimitRPS <= 0 disables request rate limiting.
func NewClient(baseURL, token string, timeout time.Duration, rateLimitRPS float64) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if rateLimitRPS > 0 {
		burst := int(rateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rateLimitRPS), burst)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// HasToken reports whether a credential is configured
func (c *Client) HasToken() bool {
	return c.token != ""
}

// Close closes idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// GetState returns the state of a single entity.
func (c *Client) GetState(ctx context.Context, entityID string) (*EntityState, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/api/states/%s", c.baseURL, url.PathEscape(entityID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{EntityID: entityID, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var state EntityState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode state of %s: %w", entityID, err)
	}
	return &state, nil
}

// FetchStates looks up every id in parallel. Failed lookups are logged and
// omitted. Without a token the result is empty and no requests are made.
func (c *Client) FetchStates(ctx context.Context, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out
	}
	if !c.HasToken() {
		log.Debug().Int("entities", len(ids)).Msg("No Home Assistant token, skipping state fetch")
		return out
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			s, err := c.GetState(ctx, id)
			if err != nil {
				log.Warn().Err(err).Str("entity", id).Msg("Failed to fetch entity state")
				return
			}

			mu.Lock()
			out[id] = s.State
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	return out
}

// StatusError is returned for a non-200 response
type StatusError struct {
	EntityID   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("home assistant returned %d for %s: %s", e.StatusCode, e.EntityID, strings.TrimSpace(e.Body))
}
