// Package directory is the HTTP client for the upstream user directory API.
package directory

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

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBaseURL is the public reqres deployment.
	DefaultBaseURL = "https://reqres.in/api"

	opLogin  = "login"
	opList   = "list_users"
	opUpdate = "update_user"
	opDelete = "delete_user"

	maxErrorBody = 4 << 10
)

// Observer receives per-call timings. observability.Metrics implements it.
type Observer interface {
	ObserveUpstream(op, outcome string, d time.Duration)
}

// Options configures Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Observer   Observer
}

// Client wraps interactions with the directory REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	observer   Observer
	pages      singleflight.Group
}

// NewClient constructs a new client.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: base, apiKey: opts.APIKey, httpClient: hc, observer: opts.Observer}
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out loginResponse
	if err := c.do(ctx, opLogin, http.MethodPost, "/login", "", loginRequest{Email: email, Password: password}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &RequestError{Op: opLogin, Err: errors.New("response carried no token")}
	}
	return out.Token, nil
}

// ListUsers fetches one page of users. Identical in-flight calls for the same
// token and page share one upstream request.
func (c *Client) ListUsers(ctx context.Context, token string, page int) (Page, error) {
	if page < 1 {
		page = 1
	}
	key := token + "|" + strconv.Itoa(page)
	ch := c.pages.DoChan(key, func() (interface{}, error) {
		// Detached so one caller going away does not fail the others.
		var out Page
		err := c.do(context.WithoutCancel(ctx), opList, http.MethodGet, "/users?page="+strconv.Itoa(page), token, nil, &out)
		return out, err
	})
	select {
	case <-ctx.Done():
		return Page{}, &RequestError{Op: opList, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return Page{}, res.Err
		}
		return res.Val.(Page), nil
	}
}

// UpdateUser sends the editable fields of user id.
func (c *Client) UpdateUser(ctx context.Context, token string, id int64, upd UserUpdate) error {
	return c.do(ctx, opUpdate, http.MethodPut, "/users/"+strconv.FormatInt(id, 10), token, upd, nil)
}

// DeleteUser removes user id.
func (c *Client) DeleteUser(ctx context.Context, token string, id int64) error {
	return c.do(ctx, opDelete, http.MethodDelete, "/users/"+strconv.FormatInt(id, 10), token, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.observer.ObserveUpstream(op, outcome, time.Since(start))
	}()

	endpoint, err := url.JoinPath(c.baseURL, strings.SplitN(path, "?", 2)[0])
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		endpoint += path[i:]
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &RequestError{Op: op, Err: err}
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var detail error
		if text := strings.TrimSpace(string(msg)); text != "" {
			detail = errors.New(text)
		}
		return &RequestError{Op: op, Status: resp.StatusCode, Err: detail}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
