// ABOUTME: HTTP client for the Wealthbox CRM REST API
// ABOUTME: Bearer auth via oauth2, page-by-page contact iteration, and 429 backoff
package wealthbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/crmsync/models"
	"golang.org/x/oauth2"
)

const (
	DefaultPerPage    = 100
	DefaultPageDelay  = 100 * time.Millisecond
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second

	requestTimeout = 30 * time.Second
	maxErrorBody   = 512
)

type Config struct {
	BaseURL string
	APIKey  string

	// PerPage is the page size requested when iterating contacts.
	PerPage int
	// PageDelay is the pause between consecutive page fetches. Zero means
	// DefaultPageDelay; negative disables the pause.
	PageDelay time.Duration
	// MaxRetries bounds retries of a rate-limited request. Zero means
	// DefaultMaxRetries; negative disables retries.
	MaxRetries int
	// BaseDelay is multiplied by the attempt number to get the wait after a 429.
	BaseDelay time.Duration

	// HTTPClient supplies the base transport. Defaults to http.DefaultTransport.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	baseURL    string
	http       *http.Client
	perPage    int
	pageDelay  time.Duration
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewClient validates cfg and builds an authenticated client.
func NewClient(cfg Config) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.BaseURL) == "" {
		missing = append(missing, "base URL")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		missing = append(missing, "API key")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfig, strings.Join(missing, ", "))
	}

	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	switch {
	case cfg.PageDelay == 0:
		cfg.PageDelay = DefaultPageDelay
	case cfg.PageDelay < 0:
		cfg.PageDelay = 0
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	base := http.DefaultTransport
	timeout := requestTimeout
	if cfg.HTTPClient != nil {
		if cfg.HTTPClient.Transport != nil {
			base = cfg.HTTPClient.Transport
		}
		if cfg.HTTPClient.Timeout > 0 {
			timeout = cfg.HTTPClient.Timeout
		}
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: base},
			Timeout:   timeout,
		},
		perPage:    cfg.PerPage,
		pageDelay:  cfg.PageDelay,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		logger:     cfg.Logger,
	}, nil
}

type contactsResponse struct {
	Contacts []models.RemoteContact `json:"contacts"`
	Meta     struct {
		CurrentPage int `json:"current_page"`
		TotalPages  int `json:"total_pages"`
		TotalCount  int `json:"total_count"`
	} `json:"meta"`
}

// FetchPage fetches one page of person contacts. hasMore reports whether
// another page should be requested.
func (c *Client) FetchPage(ctx context.Context, page, perPage int) ([]models.RemoteContact, bool, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = c.perPage
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("type", "Person")

	var resp contactsResponse
	if err := c.get(ctx, "/contacts", q, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to fetch contacts page %d: %w", page, err)
	}

	var hasMore bool
	if resp.Meta.TotalPages > 0 {
		hasMore = page < resp.Meta.TotalPages && len(resp.Contacts) > 0
	} else {
		hasMore = len(resp.Contacts) >= perPage
	}

	return resp.Contacts, hasMore, nil
}

// Contacts yields every person contact, one page at a time, in API order.
// Each range over the sequence starts again at page 1. Iteration stops after
// the first error is yielded.
func (c *Client) Contacts(ctx context.Context) iter.Seq2[models.RemoteContact, error] {
	return func(yield func(models.RemoteContact, error) bool) {
		for page := 1; ; page++ {
			if page > 1 && c.pageDelay > 0 {
				if err := sleep(ctx, c.pageDelay); err != nil {
					yield(models.RemoteContact{}, err)
					return
				}
			}

			contacts, hasMore, err := c.FetchPage(ctx, page, c.perPage)
			if err != nil {
				yield(models.RemoteContact{}, err)
				return
			}

			c.logger.Debug("fetched contacts page", "page", page, "count", len(contacts), "has_more", hasMore)

			for _, contact := range contacts {
				if !yield(contact, nil) {
					return
				}
			}

			if !hasMore {
				return
			}
		}
	}
}

// FetchByID fetches a single contact.
func (c *Client) FetchByID(ctx context.Context, id models.RemoteID) (*models.RemoteContact, error) {
	if id == "" {
		return nil, fmt.Errorf("contact id is required: %w", ErrNotFound)
	}

	var contact models.RemoteContact
	if err := c.get(ctx, "/contacts/"+url.PathEscape(id.String()), nil, &contact); err != nil {
		return nil, fmt.Errorf("failed to fetch contact %s: %w", id, err)
	}
	return &contact, nil
}

// FetchBulk fetches the whole contact list in one request via /contacts/all.
func (c *Client) FetchBulk(ctx context.Context) ([]models.RemoteContact, error) {
	var resp contactsResponse
	if err := c.get(ctx, "/contacts/all", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch all contacts: %w", err)
	}
	if resp.Contacts == nil {
		return []models.RemoteContact{}, nil
	}
	return resp.Contacts, nil
}

// GetTask fetches a task. The API may wrap it as {"task": {...}} or return it bare.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("task id is required: %w", ErrNotFound)
	}

	var raw json.RawMessage
	if err := c.get(ctx, "/tasks/"+url.PathEscape(id), nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch task %s: %w", id, err)
	}

	var wrapped struct {
		Task *models.Task `json:"task"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Task != nil {
		return wrapped.Task, nil
	}

	var task models.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", id, err)
	}
	if task.ID == "" {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return &task, nil
}

// TestConnection makes a minimal authenticated request. Rejected credentials
// report (false, nil); other failures are returned as errors.
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	_, _, err := c.FetchPage(ctx, 1, 1)
	if errors.Is(err, ErrInvalidCredentials) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// get performs a GET, retrying 429 responses with a linearly growing delay.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		err := c.do(ctx, endpoint, path, out)
		if !errors.Is(err, ErrRateLimited) {
			return err
		}
		lastErr = err

		if attempt > c.maxRetries {
			break
		}

		wait := c.baseDelay * time.Duration(attempt)
		c.logger.Warn("rate limited by wealthbox, backing off", "path", path, "attempt", attempt, "wait", wait)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return lastErr
}

func (c *Client) do(ctx context.Context, endpoint, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrInvalidCredentials
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", ErrRemoteUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodGet,
			Path:       path,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
