// Package tree is the HTTP/JSON client of the tree server.
package tree

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
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/treeremote/internal/schedule"
)

// API paths of the tree server.
const (
	PathState      = "/api/state"
	PathMode       = "/api/mode"
	PathProgram    = "/api/program"
	PathSpeed      = "/api/speed"
	PathBrightness = "/api/brightness"
	PathCountdown  = "/api/countdown"
	PathSchedule   = "/api/schedule"
	PathHealth     = "/health"
)

// RequestIDHeader carries the id of each outbound request.
const RequestIDHeader = "X-Request-ID"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// HTTPError is a non-2xx answer from the tree server.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// AsHTTPError unwraps err into an *HTTPError when possible.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

type requestIDKey struct{}

// WithRequestID attaches a request id that the client sends with the request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id attached to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Client talks to one tree server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for baseURL. Mutating calls are limited to
// rateLimitRPS requests per second.
func NewClient(baseURL string, timeout time.Duration, rateLimitRPS float64) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if rateLimitRPS == 0 {
		rateLimitRPS = 5.0
	}
	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// State fetches the authoritative device state.
func (c *Client) State(ctx context.Context) (*State, error) {
	var st State
	if err := c.do(ctx, http.MethodGet, PathState, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Health probes the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, PathHealth, nil, nil)
}

// SetMode switches between manual on, manual off and auto.
func (c *Client) SetMode(ctx context.Context, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q", mode)
	}
	return c.command(ctx, PathMode, map[string]any{"mode": mode})
}

// SetProgram selects the running program.
func (c *Client) SetProgram(ctx context.Context, programID string) error {
	return c.command(ctx, PathProgram, map[string]any{"program_id": programID})
}

// SetSpeed sets the program speed in device units.
func (c *Client) SetSpeed(ctx context.Context, speed float64) error {
	return c.command(ctx, PathSpeed, map[string]any{"program_speed": speed})
}

// SetBrightness applies a partial brightness update.
func (c *Client) SetBrightness(ctx context.Context, update BrightnessUpdate) error {
	return c.command(ctx, PathBrightness, update)
}

// StartCountdown keeps the tree on for the given number of minutes.
func (c *Client) StartCountdown(ctx context.Context, minutes int) error {
	return c.command(ctx, PathCountdown, map[string]any{"minutes": minutes})
}

// ClearCountdown cancels a running countdown.
func (c *Client) ClearCountdown(ctx context.Context) error {
	return c.command(ctx, PathCountdown, map[string]any{"clear": true})
}

// SaveSchedule replaces the server's schedule blocks.
func (c *Client) SaveSchedule(ctx context.Context, blocks []schedule.Block) error {
	if blocks == nil {
		blocks = []schedule.Block{}
	}
	return c.command(ctx, PathSchedule, map[string]any{"blocks": blocks})
}

func (c *Client) command(ctx context.Context, path string, body any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(text)),
		}
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Msg("Tree server request completed")

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
