package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client is a minimal Qdrant REST client for the pattern vector index.
// Writers serialize on point id server-side; readers are lock-free.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	vectorSize int
	http       *http.Client
	log        zerolog.Logger
}

// ScoredPoint is one similarity hit.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// NewClient creates a Qdrant client bound to one collection.
func NewClient(baseURL, apiKey, collection string, vectorSize int, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		vectorSize: vectorSize,
		http:       &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// WithHTTPClient overrides the transport, mainly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// EnsureCollection creates the cosine-distance collection if absent.
func (c *Client) EnsureCollection(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("qdrant collection check: status %d", status)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.vectorSize,
			"distance": "Cosine",
		},
	}
	status, _, err = c.do(ctx, http.MethodPut, "/collections/"+c.collection, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant collection create: status %d", status)
	}
	c.log.Info().Str("collection", c.collection).Msg("created qdrant collection")
	return nil
}

// Upsert writes one point. Re-upserting an id overwrites its vector and
// payload.
func (c *Client) Upsert(ctx context.Context, id string, vector []float64, payload map[string]any) error {
	body := map[string]any{
		"points": []map[string]any{{
			"id":      id,
			"vector":  vector,
			"payload": payload,
		}},
	}
	status, respBody, err := c.do(ctx, http.MethodPut, "/collections/"+c.collection+"/points?wait=true", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant upsert: status %d: %s", status, respBody)
	}
	return nil
}

// Search returns the nearest points at or above the score threshold.
func (c *Client) Search(ctx context.Context, vector []float64, limit int, threshold float64) ([]ScoredPoint, error) {
	body := map[string]any{
		"vector":          vector,
		"limit":           limit,
		"score_threshold": threshold,
		"with_payload":    true,
	}
	status, respBody, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/search", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant search: status %d: %s", status, respBody)
	}

	var parsed struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode qdrant search: %w", err)
	}

	points := make([]ScoredPoint, 0, len(parsed.Result))
	for _, hit := range parsed.Result {
		points = append(points, ScoredPoint{
			ID:      fmt.Sprint(hit.ID),
			Score:   hit.Score,
			Payload: hit.Payload,
		})
	}
	return points, nil
}

// Delete removes points by id; used when a pattern is deactivated.
func (c *Client) Delete(ctx context.Context, ids ...string) error {
	body := map[string]any{"points": ids}
	status, respBody, err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/delete?wait=true", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant delete: status %d: %s", status, respBody)
	}
	return nil
}

// Healthy reports whether the Qdrant endpoint answers.
func (c *Client) Healthy(ctx context.Context) bool {
	status, _, err := c.do(ctx, http.MethodGet, "/collections", nil)
	return err == nil && status == http.StatusOK
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}
