package gpuserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"murmur/internal/router"
	"murmur/internal/services"
)

// BackendName is the router identifier for this backend.
const BackendName = "gpu_server"

const defaultTimeout = 30 * time.Minute

// Config captures connection settings for the GPU transcription server.
type Config struct {
	// BaseURL is the server root, e.g. "http://gpu-box:9000".
	BaseURL string
	// Timeout bounds a full transcription request, upload included.
	Timeout time.Duration
}

// Client talks to the GPU transcription server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New validates the configuration and returns a client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", "configure",
			"GPU server URL is required", nil)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", "configure",
			fmt.Sprintf("invalid GPU server URL %q", cfg.BaseURL), err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name implements router.Backend.
func (c *Client) Name() string { return BackendName }

// Available probes the server's health endpoint.
func (c *Client) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gpu server unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gpu server health returned %s", resp.Status)
	}
	return nil
}

// transcribeResponse is the server's wire format.
type transcribeResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Model    string           `json:"model"`
	Segments []router.Segment `json:"segments"`
}

// Transcribe uploads the audio file and returns the parsed transcription.
func (c *Client) Transcribe(ctx context.Context, req router.Request) (*router.Result, error) {
	body, contentType, err := buildUpload(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("build transcribe request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "upload",
			"GPU server request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "upload",
			fmt.Sprintf("GPU server returned %s: %s", resp.Status, strings.TrimSpace(string(payload))), nil)
	}

	var parsed transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "decode",
			"GPU server returned malformed JSON", err)
	}
	if strings.TrimSpace(parsed.Text) == "" && len(parsed.Segments) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "decode",
			"GPU server returned an empty transcription", nil)
	}

	return &router.Result{
		Text:     parsed.Text,
		Segments: parsed.Segments,
		Language: parsed.Language,
		Model:    parsed.Model,
		Elapsed:  time.Since(start),
	}, nil
}

// buildUpload assembles the multipart request body. The whole file is read
// into memory; watched-folder recordings are small enough that streaming is
// not worth the plumbing.
func buildUpload(req router.Request) (io.Reader, string, error) {
	file, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, "", services.Wrap(services.ErrValidation, "transcribe", "upload",
			fmt.Sprintf("cannot open audio file %q", req.AudioPath), err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy audio into form: %w", err)
	}

	fields := map[string]string{
		"model":   req.Model,
		"diarize": strconv.FormatBool(req.Diarize),
	}
	if req.Language != "" {
		fields["language"] = req.Language
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finish multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
