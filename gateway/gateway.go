// Package gateway talks to the notes HTTP API. It performs no retries and
// reports failures in three categories: network errors when no response
// arrived, validation errors for rejected drafts and server errors for any
// other unsuccessful response.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-notehub/note"
	"go.uber.org/zap"
)

// Snapshot content negotiation for page routes.
const (
	SnapshotContentType = "application/x-msgpack"
	TagHeader           = "X-Notehub-Tag"
)

// API is the set of backend calls the client side needs.
type API interface {
	ListNotes(ctx context.Context, page int, query, tag string) (note.Page, error)
	CreateNote(ctx context.Context, draft note.Draft) (note.Note, error)
}

var _ API = (*Client)(nil)

// Client is the HTTP implementation of API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The configured timeout
// is applied on top of it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gateway: invalid config: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Timeout > 0 {
		hc := *c.http
		hc.Timeout = cfg.Timeout
		c.http = &hc
	}
	return c, nil
}

// ListNotes fetches one page of notes. Empty query and tag are left out of
// the request.
func (c *Client) ListNotes(ctx context.Context, page int, query, tag string) (note.Page, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("perPage", strconv.Itoa(note.DefaultPerPage))
	if query != "" {
		params.Set("search", query)
	}
	if tag != "" {
		params.Set("tag", tag)
	}

	var out note.Page
	if err := c.do(ctx, http.MethodGet, "/notes?"+params.Encode(), nil, &out); err != nil {
		return note.Page{}, err
	}
	if out.Notes == nil {
		out.Notes = []note.Note{}
	}
	return out, nil
}

// CreateNote submits draft and returns the stored note.
func (c *Client) CreateNote(ctx context.Context, draft note.Draft) (note.Note, error) {
	var out note.Note
	if err := c.do(ctx, http.MethodPost, "/notes", draft, &out); err != nil {
		return note.Note{}, err
	}
	return out, nil
}

// FetchSnapshot requests the encoded query snapshot of a page route instead
// of its HTML. It returns the snapshot bytes and the tag the page resolved.
func (c *Client) FetchSnapshot(ctx context.Context, pageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Accept", SnapshotContentType)
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", note.NewNetworkError(err, "snapshot request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", note.NewNetworkError(err, "read snapshot")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", note.NewServerError(resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return body, resp.Header.Get(TagHeader), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gateway: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	c.logger.Debug("gateway request", zap.String("method", method), zap.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("gateway request failed", zap.String("path", path), zap.Error(err))
		return note.NewNetworkError(err, fmt.Sprintf("%s %s failed", method, path))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return note.NewNetworkError(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(method, resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return goerrors.Wrap(err, note.CategoryServer, "malformed response body").
			WithCode(resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

type errorBody struct {
	Error struct {
		Message          string                    `json:"message"`
		ValidationErrors goerrors.ValidationErrors `json:"validation_errors"`
	} `json:"error"`
}

// decodeError maps an unsuccessful response to a categorised error. Draft
// rejections keep the backend's field errors.
func decodeError(method string, status int, raw []byte) error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	message := body.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}

	if method == http.MethodPost && (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity) {
		return goerrors.NewValidation(message, body.Error.ValidationErrors...).
			WithCode(status).
			WithTextCode(goerrors.HTTPStatusToTextCode(status))
	}
	return note.NewServerError(status, message)
}
