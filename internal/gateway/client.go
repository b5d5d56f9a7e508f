package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
)

// TokenSource supplies bearer tokens and performs the single refresh the
// transport is allowed after a 401.
type TokenSource interface {
	AccessToken() string
	RefreshAccess(ctx context.Context) (string, error)
}

// Client is the Remote Data Gateway. Every call makes one attempt (plus one
// retry after a successful token refresh) and returns either a payload or a
// classified *httperr.Failure.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the transport, mainly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// SetTokenSource must be called before any authenticated request.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

type call struct {
	op     string
	method string
	path   string
	in     any
	out    any
	auth   bool
}

func (c *Client) do(ctx context.Context, req call) error {
	var payload []byte
	if req.in != nil {
		b, err := json.Marshal(req.in)
		if err != nil {
			return malformed(req.op, err)
		}
		payload = b
	}

	token := ""
	if req.auth {
		if c.tokens == nil {
			return httperr.New(httperr.KindUnauthorized, req.op, errors.New("no session"))
		}
		token = c.tokens.AccessToken()
	}

	resp, err := c.send(ctx, req, payload, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && req.auth {
		resp.Body.Close()

		fresh, err := c.tokens.RefreshAccess(ctx)
		if err != nil {
			return err
		}
		resp, err = c.send(ctx, req, payload, fresh)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if err := classifyStatus(req.op, resp); err != nil {
		return err
	}
	return decode(req.op, resp, req.out)
}

func (c *Client) send(ctx context.Context, req call, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, malformed(req.op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// url.Error keeps context.Canceled reachable through errors.Is
		return nil, httperr.New(httperr.KindNetworkUnreachable, req.op, err)
	}
	return resp, nil
}

func classifyStatus(op string, resp *http.Response) error {
	code := resp.StatusCode
	if code < 400 {
		return nil
	}

	msg := readErrorMessage(resp)
	cause := fmt.Errorf("%s %s: %s", resp.Request.Method, resp.Request.URL.Path, msg)

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return httperr.New(httperr.KindUnauthorized, op, cause)
	case code == http.StatusNotFound || code == http.StatusGone:
		return httperr.New(httperr.KindNotFound, op, cause)
	}
	return httperr.Server(op, code, cause)
}

func readErrorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return http.StatusText(resp.StatusCode)
}

// errEmptyBody is reported by decode when a 2xx response carries no body.
var errEmptyBody = errors.New("empty body")

func decode(op string, resp *http.Response, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if resp.StatusCode == http.StatusNoContent {
		return errEmptyBody
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return httperr.New(httperr.KindMalformedResponse, op, err)
	}
	return nil
}

func malformed(op string, err error) error {
	return httperr.New(httperr.KindMalformedResponse, op, err)
}
