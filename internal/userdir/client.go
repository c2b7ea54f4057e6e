// Package userdir resolves user display names from the external account
// directory that owns the user lifecycle.
package userdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when the directory does not know the user.
var ErrNotFound = errors.New("userdir: not found")

// Profile is the subset of a directory record kept locally.
type Profile struct {
	ID   uuid.UUID
	Name string
}

// Client defines the contract for querying the user directory.
type Client interface {
	Lookup(ctx context.Context, id uuid.UUID) (*Profile, error)
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
	logger  logrus.FieldLogger
}

// NewHTTPClient constructs a new HTTP-backed directory client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger logrus.FieldLogger) (*HTTPClient, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse user directory url: %w", err)
	}
	return &HTTPClient{
		baseURL: parsed,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger.WithField("component", "userdir"),
	}, nil
}

// Lookup fetches a user profile by id.
func (c *HTTPClient) Lookup(ctx context.Context, id uuid.UUID) (*Profile, error) {
	endpoint := c.baseURL.JoinPath("users", id.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode user directory response: %w", err)
		}
		return convertToProfile(id, payload)
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		c.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "user_id": id}).Warn("unexpected user directory status")
		return nil, fmt.Errorf("userdir: upstream returned %d", resp.StatusCode)
	}
}

type apiResponse struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	DisplayName *string `json:"displayName"`
}

// convertToProfile prefers displayName over name and truncates to the column
// width of users.name.
func convertToProfile(requested uuid.UUID, payload apiResponse) (*Profile, error) {
	if payload.ID != "" {
		got, err := uuid.Parse(payload.ID)
		if err != nil {
			return nil, fmt.Errorf("userdir: invalid id %q: %w", payload.ID, err)
		}
		if got != requested {
			return nil, fmt.Errorf("userdir: asked for %s, got %s", requested, got)
		}
	}

	name := ""
	if payload.DisplayName != nil {
		name = strings.TrimSpace(*payload.DisplayName)
	}
	if name == "" && payload.Name != nil {
		name = strings.TrimSpace(*payload.Name)
	}
	if name == "" {
		name = "Anonymous"
	}
	if runes := []rune(name); len(runes) > maxNameLen {
		name = strings.TrimSpace(string(runes[:maxNameLen]))
	}
	return &Profile{ID: requested, Name: name}, nil
}

const maxNameLen = 100
