// Package api is the HTTP client for the relationship service: paginated
// friend and friend-request reads plus the relationship-mutating writes.
// It performs no retries; every failure is returned to the caller as a
// *NetworkError or *ServerError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/connectcg/friendsync/internal/metrics"
	"github.com/connectcg/friendsync/internal/models"
)

const maxErrorBody = 64 << 10

// Client issues relationship service calls.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithMetrics records call counts and latencies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New constructs a Client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListFriends fetches one page of friends. A nil subjectID lists the viewer's
// own friends.
func (c *Client) ListFriends(ctx context.Context, subjectID *string, filter models.Filter, page, size int) (models.Page[models.FriendEntry], error) {
	segments := []string{"friends"}
	if subjectID != nil {
		segments = append(segments, *subjectID)
	}

	query := pageQuery(page, size)
	if name := strings.TrimSpace(filter.Name); name != "" {
		query.Set("name", name)
	}
	if filter.Gender != "" {
		query.Set("gender", filter.Gender)
	}
	if filter.CityID != "" {
		query.Set("cityId", filter.CityID)
	}

	var payload wirePage[wireFriend]
	if err := c.do(ctx, "list_friends", http.MethodGet, segments, query, nil, &payload); err != nil {
		return models.Page[models.FriendEntry]{}, err
	}

	out := models.Page[models.FriendEntry]{
		Content:       make([]models.FriendEntry, 0, len(payload.Content)),
		Last:          payload.Last,
		TotalElements: payload.TotalElements,
		Returned:      len(payload.Content),
	}
	for _, w := range payload.Content {
		if w.ID == "" {
			continue
		}
		out.Content = append(out.Content, w.model())
	}
	return out, nil
}

// ListPendingRequests fetches one page of inbound friend requests.
func (c *Client) ListPendingRequests(ctx context.Context, page, size int) (models.Page[models.FriendRequest], error) {
	var payload wirePage[wireRequest]
	err := c.do(ctx, "list_pending_requests", http.MethodGet, []string{"friend-requests", "pending"}, pageQuery(page, size), nil, &payload)
	if err != nil {
		return models.Page[models.FriendRequest]{}, err
	}

	out := models.Page[models.FriendRequest]{
		Content:       make([]models.FriendRequest, 0, len(payload.Content)),
		Last:          payload.Last,
		TotalElements: payload.TotalElements,
		Returned:      len(payload.Content),
	}
	for _, w := range payload.Content {
		req := w.model()
		if req.RequestID == "" {
			continue
		}
		out.Content = append(out.Content, req)
	}
	return out, nil
}

// Unfriend removes the friendship with friendID.
func (c *Client) Unfriend(ctx context.Context, friendID string) error {
	return c.do(ctx, "unfriend", http.MethodDelete, []string{"friends", friendID}, nil, nil, nil)
}

// AcceptRequest accepts the inbound request requestID.
func (c *Client) AcceptRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, "accept_request", http.MethodPost, []string{"friend-requests", requestID, "accept"}, nil, nil, nil)
}

// RejectRequest rejects the inbound request requestID.
func (c *Client) RejectRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, "reject_request", http.MethodPost, []string{"friend-requests", requestID, "reject"}, nil, nil, nil)
}

// SendRequest sends a friend request to targetUserID.
func (c *Client) SendRequest(ctx context.Context, targetUserID string) error {
	return c.do(ctx, "send_request", http.MethodPost, []string{"friend-requests"}, nil, sendRequestBody{TargetUserID: targetUserID}, nil)
}

// GetMyProfile fetches the viewer's profile.
func (c *Client) GetMyProfile(ctx context.Context) (models.ProfileSnapshot, error) {
	var payload wireProfile
	if err := c.do(ctx, "get_profile", http.MethodGet, []string{"profiles", "me"}, nil, nil, &payload); err != nil {
		return models.ProfileSnapshot{}, err
	}
	return payload.model(c.now()), nil
}

func pageQuery(page, size int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	return q
}

func (c *Client) endpoint(segments []string, query url.Values) (string, error) {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			return "", errors.New("empty path segment")
		}
		escaped = append(escaped, url.PathEscape(s))
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(segments, "/")
	u.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, op, method string, segments []string, query url.Values, body, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeOK
		var netErr *NetworkError
		switch {
		case errors.As(err, &netErr):
			outcome = metrics.OutcomeNetworkError
		case err != nil:
			outcome = metrics.OutcomeServerError
		}
		c.metrics.ObserveCall(op, outcome, time.Since(start))
	}()

	target, err := c.endpoint(segments, query)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: readErrorMessage(resp)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}

func readErrorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if msg := strings.TrimSpace(body.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(body.Error); msg != "" {
			return msg
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
