// Package embed talks to an Ollama-compatible embedding backend over HTTP.
// The scoring engine treats the backend as a shared, read-only resource: the
// client is safe for concurrent use and rate-limits its own requests so a
// burst of product scoring cannot flood the model server.
package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Embedder produces embedding vectors for text and images.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
	EmbedImage(ctx context.Context, imageURL string) ([]float64, error)
}

// Client implements Embedder against a JSON /api/embeddings endpoint.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// Options configure a Client.
type Options struct {
	// BaseURL of the backend, e.g. http://localhost:11434.
	BaseURL string
	// Model name passed with every request.
	Model string
	// RequestsPerSecond caps outbound calls. Zero means 10/s.
	RequestsPerSecond float64
	// Timeout per request. Zero means 30s.
	Timeout time.Duration
}

// NewClient builds a Client. The logger may be nil.
func NewClient(opts Options, log *zap.Logger) *Client {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: opts.BaseURL,
		model:   opts.Model,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		log:     log,
	}
}

type embedRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EmbedText returns the embedding vector for text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float64, error) {
	return c.embed(ctx, embedRequest{Model: c.model, Prompt: text})
}

// EmbedImage fetches the image and sends it to the backend base64-encoded.
func (c *Client) EmbedImage(ctx context.Context, imageURL string) ([]float64, error) {
	data, err := c.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	return c.embed(ctx, embedRequest{
		Model:  c.model,
		Images: []string{base64.StdEncoding.EncodeToString(data)},
	})
}

func (c *Client) embed(ctx context.Context, reqBody embedRequest) ([]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("embedding request failed", zap.Error(err))
		return nil, fmt.Errorf("embedding backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("embedding backend rejected request", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("embedding backend returned %d: %s", resp.StatusCode, string(body))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embedding backend returned an empty vector")
	}
	return out.Embedding, nil
}

func (c *Client) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	// 10 MiB cap; product thumbnails are far smaller.
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

// Cosine returns the cosine similarity of two vectors, or 0 when either has
// zero magnitude or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
