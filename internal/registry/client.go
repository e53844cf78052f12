// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public quay.io API root.
	DefaultBaseURL = "https://quay.io"
	// DefaultNamespace holds the manylinux images.
	DefaultNamespace = "pypa"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

type (
	// Repository identifies a repository within a namespace.
	Repository struct {
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
	}

	// Tag is one tag of a repository as reported by the registry.
	Tag struct {
		Name           string `json:"name"`
		LastModified   string `json:"last_modified"`
		ManifestDigest string `json:"manifest_digest"`
	}

	// StatusError is returned for non-2xx API responses.
	StatusError struct {
		URL        string
		StatusCode int
		Body       string
	}

	// Client talks to the registry API. Requests are paced by a token bucket.
	Client struct {
		baseURL    string
		httpClient *http.Client
		limiter    *rate.Limiter
		userAgent  string
	}

	// ClientOption configures a Client.
	ClientOption func(*Client)

	repositoryList struct {
		Repositories []Repository `json:"repositories"`
		NextPage     string       `json:"next_page"`
	}

	repositoryInfo struct {
		Tags map[string]Tag `json:"tags"`
	}
)

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("registry request %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsUnreachable reports whether err came from talking to the registry: a
// transport failure or a non-2xx response. Cancellation is not included.
func IsUnreachable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// String returns namespace/name.
func (r Repository) String() string {
	return r.Namespace + "/" + r.Name
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit paces requests to rps per second. rps <= 0 disables pacing.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		userAgent:  "manylinux-inspector",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host returns the registry host used in image references (e.g. quay.io).
func (c *Client) Host() string {
	u, err := url.Parse(c.baseURL)
	if err != nil || u.Host == "" {
		return strings.TrimPrefix(strings.TrimPrefix(c.baseURL, "https://"), "http://")
	}
	return u.Host
}

// ListRepositories returns the public repositories of namespace, following
// pagination.
func (c *Client) ListRepositories(ctx context.Context, namespace string) ([]Repository, error) {
	var repos []Repository
	nextPage := ""
	for {
		q := url.Values{}
		q.Set("public", "true")
		q.Set("namespace", namespace)
		if nextPage != "" {
			q.Set("next_page", nextPage)
		}

		var page repositoryList
		if err := c.getJSON(ctx, "/api/v1/repository", q, &page); err != nil {
			return nil, err
		}
		repos = append(repos, page.Repositories...)

		if page.NextPage == "" || page.NextPage == nextPage {
			break
		}
		nextPage = page.NextPage
	}
	slog.Debug("listed repositories", "namespace", namespace, "count", len(repos))
	return repos, nil
}

// Tags returns the tags of repo sorted by name.
func (c *Client) Tags(ctx context.Context, repo Repository) ([]Tag, error) {
	q := url.Values{}
	q.Set("includeTags", "true")

	var info repositoryInfo
	path := "/api/v1/repository/" + url.PathEscape(repo.Namespace) + "/" + url.PathEscape(repo.Name)
	if err := c.getJSON(ctx, path, q, &info); err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, len(info.Tags))
	for name, tag := range info.Tags {
		if tag.Name == "" {
			tag.Name = name
		}
		tags = append(tags, tag)
	}
	slices.SortFunc(tags, func(a, b Tag) int { return strings.Compare(a.Name, b.Name) })
	return tags, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("registry rate limiter: %w", err)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", reqURL, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry request %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{URL: reqURL, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", reqURL, err)
	}
	return nil
}
