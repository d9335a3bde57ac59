// Package infer talks to the perception sidecar: face detection,
// face embeddings and optional background masking over HTTP.
package infer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:8000"

// Client is an HTTP client for the inference sidecar. Images travel
// as multipart JPEG uploads, results come back as JSON (or raw image
// bytes for masking).
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a sidecar client. An empty baseURL falls back to
// the local default; a zero timeout leaves requests unbounded except
// by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Detection is one face found in a frame.
type Detection struct {
	// BBox is [x1, y1, x2, y2] in frame pixel coordinates.
	BBox  []float64 `json:"bbox"`
	Score float64   `json:"det_score"`
}

type detectResponse struct {
	FacesCount int         `json:"faces_count"`
	Faces      []Detection `json:"faces"`
}

type embedResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
}

// Detect finds faces in a JPEG frame, keeping only detections scored
// above threshold. Zero faces is a normal result.
func (c *Client) Detect(ctx context.Context, frameJPEG []byte, threshold float64) ([]Detection, error) {
	endpoint := "/detect?threshold=" + strconv.FormatFloat(threshold, 'f', -1, 64)
	body, err := c.postMultipartImage(ctx, endpoint, frameJPEG)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse detect response: %w", err)
	}

	return resp.Faces, nil
}

// Embed computes the embedding of one cropped, normalized face image.
func (c *Client) Embed(ctx context.Context, faceJPEG []byte) ([]float32, error) {
	body, err := c.postMultipartImage(ctx, "/embed", faceJPEG)
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse embed response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}

	return resp.Embedding, nil
}

// Mask runs background removal over a JPEG frame and returns the
// masked frame as image bytes.
func (c *Client) Mask(ctx context.Context, frameJPEG []byte) ([]byte, error) {
	return c.postMultipartImage(ctx, "/mask", frameJPEG)
}

// Healthy checks the sidecar's health endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sidecar unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// postMultipartImage uploads image bytes as a multipart form and
// returns the response body. Non-200 statuses surface as errors with
// the body included.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sidecar error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
