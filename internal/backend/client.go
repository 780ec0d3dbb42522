// Package backend talks to the sales dashboard API: pending deal
// notifications, per-panel acknowledgments and podium rankings.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dealboard/internal/celebration"
	"dealboard/internal/leaderboard"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

var ErrNoBaseURL = errors.New("backend: base url is empty")

// StatusError is a non-2xx reply.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend %s failed: http=%d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("backend %s failed: http=%d", e.Op, e.Status)
}

type Config struct {
	BaseURL  string
	Token    string
	ClientID string
	Timeout  time.Duration
}

type Client struct {
	cfg  Config
	base *url.URL
	http *http.Client
}

// New builds a client on a pooled transport. hc may be nil.
func New(cfg Config, hc *http.Client) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, ErrNoBaseURL
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: base url: %w", err)
	}
	if hc == nil {
		hc = cleanhttp.DefaultPooledClient()
		hc.Timeout = cfg.Timeout
		if hc.Timeout <= 0 {
			hc.Timeout = 10 * time.Second
		}
	}
	return &Client{cfg: cfg, base: u, http: hc}, nil
}

func (c *Client) ClientID() string { return c.cfg.ClientID }

// Pending is the body of /api/deals/pending.
type Pending struct {
	Notifications []celebration.Notification `json:"notifications"`
	Count         int                        `json:"count"`
}

// FetchPending returns notifications this panel has not marked viewed,
// restricted to those created after since (zero means no filter). Order is
// as served.
func (c *Client) FetchPending(ctx context.Context, since time.Time) ([]celebration.Notification, error) {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	var out Pending
	if err := c.getJSON(ctx, "pending", "/api/deals/pending", q, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

// MarkViewed acknowledges one notification for this panel.
func (c *Client) MarkViewed(ctx context.Context, id celebration.ID) error {
	if !id.IsReal() {
		return fmt.Errorf("backend: refusing to acknowledge synthetic id %q", id)
	}
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	req, err := c.newRequest(ctx, http.MethodPost, "/api/deals/mark-viewed/"+url.PathEscape(id.String()), q)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend mark-viewed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("mark-viewed", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchPodium reads one ranking: period is "semana" or "mes", pipeline is
// the CRM pipeline id.
func (c *Client) FetchPodium(ctx context.Context, kind leaderboard.Kind, period, pipeline string) (leaderboard.Podium, error) {
	q := url.Values{}
	if period != "" {
		q.Set("periodo", period)
	}
	if pipeline != "" {
		q.Set("pipeline", pipeline)
	}
	var raw json.RawMessage
	if err := c.getJSON(ctx, "podium", "/api/destaques/"+kind.Path(), q, &raw); err != nil {
		return leaderboard.Podium{}, err
	}
	p, err := leaderboard.Decode(kind, raw)
	if err != nil {
		return leaderboard.Podium{}, err
	}
	if p.Kind == "" {
		p.Kind = kind
	}
	return p, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values) (*http.Request, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if tok := strings.TrimSpace(c.cfg.Token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, q)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend %s: decode: %w", op, err)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
