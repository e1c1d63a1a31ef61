// Package encoder is the HTTP client for the external face encoder server.
// The server locates faces in an image and returns one fixed-length embedding
// plus a bounding box per detected face.
package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kozaktomas/face-watch/internal/config"
)

const (
	defaultURL          = "http://localhost:8000"
	defaultModel        = "hog"
	defaultMaxImageSize = 1024
)

// Client computes face embeddings using the encoder server.
type Client struct {
	baseURL      string
	model        string
	maxImageSize int
	client       *http.Client
}

// NewClient creates a new encoder client from configuration.
func NewClient(cfg *config.EncoderConfig) *Client {
	url := cfg.URL
	if url == "" {
		url = defaultURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxSize := cfg.MaxImageSize
	if maxSize <= 0 {
		maxSize = defaultMaxImageSize
	}
	return &Client{
		baseURL:      strings.TrimSuffix(url, "/"),
		model:        model,
		maxImageSize: maxSize,
		client:       &http.Client{},
	}
}

// Face represents a single detected face
type Face struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels of the original image
	DetScore  float64   `json:"det_score"`
}

// Result represents the response from the face embedding endpoint
type Result struct {
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
	Model      string `json:"model"`
}

// postMultipartImage constructs a multipart form with the image data and posts it
// to the given endpoint. The part carries an explicit Content-Type header based on
// magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
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
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectFaces locates every face in an image and returns their embeddings and
// bounding boxes. Oversized images are downscaled before upload; detection on the
// full-size original is slow and does not improve recall. Bounding boxes are
// mapped back to original-image pixels, so callers can draw on the image they
// submitted. Zero detected faces is a normal result, not an error.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) (*Result, error) {
	prepared, scale, err := resizeWithScale(imageData, c.maxImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	body, err := c.postMultipartImage(ctx, "/embed/face?model="+c.model, prepared)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if scale != 1 {
		for i := range result.Faces {
			for j := range result.Faces[i].BBox {
				result.Faces[i].BBox[j] *= scale
			}
		}
	}

	return &result, nil
}

// EncodeFaces returns just the embedding vectors for every detected face.
func (c *Client) EncodeFaces(ctx context.Context, imageData []byte) ([][]float32, error) {
	result, err := c.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(result.Faces))
	for _, face := range result.Faces {
		vectors = append(vectors, face.Embedding)
	}
	return vectors, nil
}

// Model returns the detection model name being used
func (c *Client) Model() string {
	return c.model
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
