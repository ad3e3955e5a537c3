// Package aiclient talks to a remote multimodal analysis endpoint: it
// authenticates, uploads media artifacts, invokes generation, and
// normalizes replies whose JSON may be embedded in prose.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/five82/reelsort/internal/config"
)

// RemoteHandle references a previously uploaded artifact.
type RemoteHandle struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
}

// ShortLivedToken is a bearer token with an expiry, refreshed transparently
// by the client before it is stale.
type ShortLivedToken struct {
	Value     string
	ExpiresAt time.Time
}

func (t ShortLivedToken) nearExpiry() bool {
	return time.Now().After(t.ExpiresAt.Add(-30 * time.Second))
}

// GenerationParams configures a single generate call.
type GenerationParams struct {
	Temperature     float64
	TopP            float64
	MaxOutputTokens int
}

// RawReply is the unparsed text returned by the model for a generate call.
type RawReply struct {
	Text string
}

// NetworkError distinguishes transient (retryable) failures from permanent ones.
type NetworkError struct {
	Transient bool
	Err       error
}

func (e *NetworkError) Error() string { return e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// Client is the remote AI client. One Client should be shared across a
// workflow run; a token-bucket rate limiter paces its upload and generate
// attempts to MaxConcurrentRequests per second, with a burst of the same
// size. The number of requests in flight at once is not bounded.
type Client struct {
	baseURL    string
	apiKey     string
	modelID    string
	httpClient *http.Client
	timeout    time.Duration

	retryBase       time.Duration
	retryMultiplier float64
	maxAttempts     int

	limiter *rate.Limiter

	tokenMu sync.Mutex
	token   *ShortLivedToken
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, used by tests to
// inject a doubled transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New constructs a Client from cfg. The HTTP transport is wrapped with
// otelhttp instrumentation; without a configured trace exporter this is a
// no-op recorder, matching the ambient-observability posture of the rest of
// the stack.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		baseURL:         cfg.APIBaseURL,
		apiKey:          cfg.APIKey,
		modelID:         cfg.ModelID,
		timeout:         time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		retryBase:       time.Duration(cfg.RetryBaseSeconds * float64(time.Second)),
		retryMultiplier: cfg.RetryMultiplier,
		maxAttempts:     cfg.MaxAttempts,
		limiter:         rate.NewLimiter(rate.Limit(cfg.MaxConcurrentRequests), cfg.MaxConcurrentRequests),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the client's idle HTTP connections.
func (c *Client) Close() error {
	if ct, ok := c.httpClient.Transport.(interface{ CloseIdleConnections() }); ok {
		ct.CloseIdleConnections()
	}
	return nil
}

// AuthToken returns a cached bearer token, refreshing it if it is near
// expiry. In the absence of a configured OAuth exchange, the static apiKey
// is wrapped as a long-lived token.
func (c *Client) AuthToken(ctx context.Context) (ShortLivedToken, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != nil && !c.token.nearExpiry() {
		return *c.token, nil
	}
	tok := ShortLivedToken{Value: c.apiKey, ExpiresAt: time.Now().Add(time.Hour)}
	c.token = &tok
	return tok, nil
}

// Upload sends the file at path to the remote endpoint and returns a handle
// usable in a subsequent Generate call's attachments.
func (c *Client) Upload(ctx context.Context, path, mimeHint string) (RemoteHandle, error) {
	if mimeHint == "" {
		mimeHint = mime.TypeByExtension(filepath.Ext(path))
		if mimeHint == "" {
			mimeHint = "application/octet-stream"
		}
	}

	var handle RemoteHandle
	op := func() (RemoteHandle, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return RemoteHandle{}, err
		}
		f, err := os.Open(path)
		if err != nil {
			return RemoteHandle{}, backoff.Permanent(fmt.Errorf("open %s: %w", path, err))
		}
		defer f.Close()

		tok, err := c.AuthToken(ctx)
		if err != nil {
			return RemoteHandle{}, backoff.Permanent(err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/upload", f)
		if err != nil {
			return RemoteHandle{}, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.Value)
		req.Header.Set("Content-Type", mimeHint)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return RemoteHandle{}, fmt.Errorf("upload request: %w", err)
		}
		defer resp.Body.Close()

		if retryable, permanent := classifyStatus(resp.StatusCode); permanent {
			return RemoteHandle{}, backoff.Permanent(fmt.Errorf("upload failed with status %d", resp.StatusCode))
		} else if retryable {
			return RemoteHandle{}, fmt.Errorf("upload failed with status %d", resp.StatusCode)
		}

		var body struct {
			URI string `json:"uri"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return RemoteHandle{}, backoff.Permanent(fmt.Errorf("decode upload response: %w", err))
		}
		return RemoteHandle{URI: body.URI, MimeType: mimeHint}, nil
	}

	result, err := backoff.Retry(ctx, op, backoff.WithMaxTries(uint(c.maxAttempts)), backoff.WithBackOff(c.backoffPolicy()))
	if err != nil {
		return RemoteHandle{}, &NetworkError{Transient: false, Err: err}
	}
	handle = result
	return handle, nil
}

// generateRequest mirrors the wire protocol's JSON body shape.
type generateRequest struct {
	Model            string           `json:"model"`
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"fileData,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate invokes the model with prompt and attachments, retrying
// transient failures with exponential backoff (base cfg.RetryBaseSeconds,
// multiplier cfg.RetryMultiplier, up to cfg.MaxAttempts). 4xx errors other
// than 429 are treated as permanent.
func (c *Client) Generate(ctx context.Context, prompt string, attachments []RemoteHandle, params GenerationParams) (RawReply, error) {
	parts := []part{{Text: prompt}}
	for _, a := range attachments {
		parts = append(parts, part{FileData: &fileData{MimeType: a.MimeType, FileURI: a.URI}})
	}

	reqBody := generateRequest{
		Model: c.modelID,
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{
			Temperature:     params.Temperature,
			TopP:            params.TopP,
			MaxOutputTokens: params.MaxOutputTokens,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return RawReply{}, fmt.Errorf("marshal generate request: %w", err)
	}

	op := func() (RawReply, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return RawReply{}, err
		}
		tok, err := c.AuthToken(ctx)
		if err != nil {
			return RawReply{}, backoff.Permanent(err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(payload))
		if err != nil {
			return RawReply{}, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.Value)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return RawReply{}, fmt.Errorf("generate request: %w", err)
		}
		defer resp.Body.Close()

		if retryable, permanent := classifyStatus(resp.StatusCode); permanent {
			return RawReply{}, backoff.Permanent(fmt.Errorf("generate failed with status %d", resp.StatusCode))
		} else if retryable {
			return RawReply{}, fmt.Errorf("generate failed with status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return RawReply{}, fmt.Errorf("read generate response: %w", err)
		}
		var out generateResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return RawReply{}, backoff.Permanent(fmt.Errorf("decode generate response: %w", err))
		}
		if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
			return RawReply{}, backoff.Permanent(fmt.Errorf("generate response had no candidates"))
		}
		return RawReply{Text: out.Candidates[0].Content.Parts[0].Text}, nil
	}

	reply, err := backoff.Retry(ctx, op, backoff.WithMaxTries(uint(c.maxAttempts)), backoff.WithBackOff(c.backoffPolicy()))
	if err != nil {
		return RawReply{}, &NetworkError{Transient: false, Err: err}
	}
	return reply, nil
}

func (c *Client) backoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.Multiplier = c.retryMultiplier
	return b
}

// classifyStatus reports whether status should be retried, and whether it
// is permanently fatal. 5xx and network-layer errors are transient; 4xx
// (except 429) are fatal; 429 is transient.
func classifyStatus(status int) (retryable, permanent bool) {
	if status < 400 {
		return false, false
	}
	if status == http.StatusTooManyRequests {
		return true, false
	}
	if status >= 500 {
		return true, false
	}
	return false, true
}
