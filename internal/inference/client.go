package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// DefaultTimeout bounds a single request to the model service.
const DefaultTimeout = 60 * time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	// ModelPath is the model artifact (e.g. best.pt) the service should load.
	ModelPath string

	// Endpoint is the base URL of the model service, e.g. "http://localhost:5000".
	Endpoint string

	// Timeout applies per request. Zero means DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the client used for requests. Optional.
	HTTPClient *http.Client
}

// Info describes a loaded model.
type Info struct {
	ModelType  string         `json:"model_type"`
	ModelPath  string         `json:"model_path"`
	ClassNames map[int]string `json:"class_names"`
	NumClasses int            `json:"num_classes"`
}

// Client is a Model backed by an HTTP model-serving process.
//
// A Client is safe for concurrent use as far as this process is concerned; whether
// the remote service handles concurrent predictions is up to that service.
type Client struct {
	endpoint  string
	modelPath string
	modelType string
	names     map[int]string
	http      *http.Client
}

type loadRequest struct {
	Model string `json:"model"`
}

type loadResponse struct {
	ModelType string         `json:"model_type"`
	Names     map[int]string `json:"names"`
}

type predictResponse struct {
	Detections []RawDetection `json:"detections"`
}

// Load asks the model service to load the artifact at cfg.ModelPath.
//
// Returns an error wrapping ErrModelLoad if the path does not exist, is a
// directory, is empty, or the service rejects it.
func Load(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: no model endpoint configured", ErrModelLoad)
	}
	if err := checkArtifact(cfg.ModelPath); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	absPath, err := filepath.Abs(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve model path: %w", ErrModelLoad, err)
	}

	c := &Client{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		modelPath: absPath,
		http:      httpClient,
	}

	body, err := json.Marshal(loadRequest{Model: absPath})
	if err != nil {
		return nil, fmt.Errorf("%w: encode load request: %w", ErrModelLoad, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/load", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrModelLoad, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %w", ErrModelLoad, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: model service returned %d: %s", ErrModelLoad, resp.StatusCode, readSnippet(resp.Body))
	}

	var lr loadResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("%w: decode load response: %w", ErrModelLoad, err)
	}
	if len(lr.Names) == 0 {
		return nil, fmt.Errorf("%w: model reports no classes", ErrModelLoad)
	}

	c.modelType = lr.ModelType
	c.names = lr.Names
	return c, nil
}

// checkArtifact verifies that path names a non-empty regular file.
func checkArtifact(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no model path given", ErrModelLoad)
	}
	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	if stat.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrModelLoad, path)
	}
	if stat.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrModelLoad, path)
	}
	return nil
}

// Predict sends img to the model service and returns its detections in the order
// the service reports them.
func (c *Client) Predict(ctx context.Context, img image.Image, conf, iou float64) ([]RawDetection, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInference)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrInference)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("%w: create form file: %w", ErrInference, err)
	}
	if err := imaging.Encode(part, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: encode image: %w", ErrInference, err)
	}
	if err := writer.WriteField("conf", strconv.FormatFloat(conf, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("%w: write conf field: %w", ErrInference, err)
	}
	if err := writer.WriteField("iou", strconv.FormatFloat(iou, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("%w: write iou field: %w", ErrInference, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: close multipart body: %w", ErrInference, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrInference, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %w", ErrInference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: model service returned %d: %s", ErrInference, resp.StatusCode, readSnippet(resp.Body))
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrInference, err)
	}

	for i, d := range pr.Detections {
		if d.Box[0] > d.Box[2] || d.Box[1] > d.Box[3] {
			return nil, fmt.Errorf("%w: detection %d has inverted box %v", ErrInference, i, d.Box)
		}
	}

	return pr.Detections, nil
}

// Names returns a copy of the model's class id to label mapping.
func (c *Client) Names() map[int]string {
	out := make(map[int]string, len(c.names))
	for k, v := range c.names {
		out[k] = v
	}
	return out
}

// Info reports the model type and class names.
func (c *Client) Info() Info {
	return Info{
		ModelType:  c.modelType,
		ModelPath:  c.modelPath,
		ClassNames: c.Names(),
		NumClasses: len(c.names),
	}
}

// ClassList returns the class names ordered by class id.
func (c *Client) ClassList() []string {
	ids := make([]int, 0, len(c.names))
	for id := range c.names {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.names[id])
	}
	return out
}

// Ping checks that the model service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// readSnippet returns at most the first 256 bytes of r for error messages.
func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
