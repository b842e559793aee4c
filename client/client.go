// Package client implements core.DrawingStore against the document service's
// HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"inkboard/core"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the drawings API rooted at BaseURL, e.g.
// http://localhost:3002/api/v1.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.URL, e.Code)
}

type drawingMeta struct {
	CanvasID  string    `json:"canvasId"`
	LayerID   string    `json:"layerId"`
	PathCount int       `json:"pathCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Client) drawingURL(canvasID, layerID string) string {
	return fmt.Sprintf("%s/canvases/%s/layers/%s/drawing", c.baseURL, url.PathEscape(canvasID), url.PathEscape(layerID))
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(data, &payload)
	return &StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL.String(),
		Code:   resp.StatusCode,
		Msg:    payload.Error,
	}
}

func (c *Client) Latest(ctx context.Context, canvasID, layerID string) (*core.Drawing, error) {
	resp, err := c.do(ctx, http.MethodGet, c.drawingURL(canvasID, layerID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, core.ErrNotFound
	default:
		return nil, statusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read drawing: %w", err)
	}
	d := &core.Drawing{
		CanvasID:  canvasID,
		LayerID:   layerID,
		Data:      data,
		PathCount: core.CountPaths(data),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			d.UpdatedAt = t
		}
	}
	return d, nil
}

func (c *Client) Upsert(ctx context.Context, drawing *core.Drawing) error {
	if len(drawing.Data) == 0 {
		return errors.New("drawing has no data")
	}
	resp, err := c.do(ctx, http.MethodPut, c.drawingURL(drawing.CanvasID, drawing.LayerID), drawing.Data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	var meta drawingMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err == nil {
		drawing.PathCount = meta.PathCount
		drawing.UpdatedAt = meta.UpdatedAt
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, canvasID, layerID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.drawingURL(canvasID, layerID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	}
	return statusError(resp)
}

func (c *Client) List(ctx context.Context, canvasID string) ([]*core.Drawing, error) {
	u := fmt.Sprintf("%s/canvases/%s/drawings", c.baseURL, url.PathEscape(canvasID))
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var metas []drawingMeta
	if err := json.NewDecoder(resp.Body).Decode(&metas); err != nil {
		return nil, fmt.Errorf("decode drawing list: %w", err)
	}
	drawings := make([]*core.Drawing, 0, len(metas))
	for _, m := range metas {
		drawings = append(drawings, &core.Drawing{
			CanvasID:  m.CanvasID,
			LayerID:   m.LayerID,
			PathCount: m.PathCount,
			UpdatedAt: m.UpdatedAt,
		})
	}
	return drawings, nil
}

var _ core.DrawingStore = (*Client)(nil)
