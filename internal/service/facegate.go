package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/noah-isme/dorm-gate-api/pkg/config"
)

// FaceMatch is the comparison verdict from the similarity service.
type FaceMatch struct {
	Match    bool    `json:"match"`
	Distance float64 `json:"distance"`
	Error    string  `json:"error,omitempty"`
}

// FaceComparer checks a captured image against a stored reference.
// A false match and a transport error are treated identically by the
// approval gate: both block the transition.
type FaceComparer interface {
	Compare(ctx context.Context, storedImage, capturedImage string, threshold float64) (FaceMatch, error)
}

// FaceComparerFunc allows using plain functions.
type FaceComparerFunc func(ctx context.Context, storedImage, capturedImage string, threshold float64) (FaceMatch, error)

// Compare implements FaceComparer.
func (f FaceComparerFunc) Compare(ctx context.Context, storedImage, capturedImage string, threshold float64) (FaceMatch, error) {
	return f(ctx, storedImage, capturedImage, threshold)
}

// HTTPFaceComparer calls the external face-similarity service over its
// JSON API. The service owns the model; this client only relays images
// and the configured distance threshold.
type HTTPFaceComparer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFaceComparer builds the client with the configured timeout.
func NewHTTPFaceComparer(cfg config.FaceConfig) *HTTPFaceComparer {
	return &HTTPFaceComparer{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Compare posts both images and decodes the verdict.
func (c *HTTPFaceComparer) Compare(ctx context.Context, storedImage, capturedImage string, threshold float64) (FaceMatch, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"stored_image":   storedImage,
		"captured_image": capturedImage,
		"threshold":      threshold,
	})
	if err != nil {
		return FaceMatch{}, fmt.Errorf("encode compare request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compare", bytes.NewReader(payload))
	if err != nil {
		return FaceMatch{}, fmt.Errorf("build compare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return FaceMatch{}, fmt.Errorf("call face service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FaceMatch{}, fmt.Errorf("face service returned %d", resp.StatusCode)
	}

	var match FaceMatch
	if err := json.NewDecoder(resp.Body).Decode(&match); err != nil {
		return FaceMatch{}, fmt.Errorf("decode compare response: %w", err)
	}
	return match, nil
}
