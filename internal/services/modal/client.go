package modal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"murmur/internal/router"
	"murmur/internal/services"
)

// BackendName is the router identifier for this backend.
const BackendName = "modal"

const defaultTimeout = 30 * time.Minute

// Config captures connection settings for the Modal endpoint.
type Config struct {
	// Endpoint is the deployed function URL.
	Endpoint string
	// Token authenticates requests; sent as a bearer token.
	Token string
	// Timeout bounds a full transcription request. Cold starts count
	// against it.
	Timeout time.Duration
}

// Client talks to the Modal transcription endpoint.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// New validates the configuration and returns a client.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", "configure",
			"Modal endpoint URL is required", nil)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:   endpoint,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name implements router.Backend.
func (c *Client) Name() string { return BackendName }

// Available probes the endpoint's health route. Modal scales from zero, so a
// healthy response does not promise a warm container, only a reachable
// deployment.
func (c *Client) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("modal endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modal health returned %s", resp.Status)
	}
	return nil
}

type transcribeResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Model    string           `json:"model"`
	Segments []router.Segment `json:"segments"`
}

// Transcribe uploads the audio file and returns the parsed transcription.
func (c *Client) Transcribe(ctx context.Context, req router.Request) (*router.Result, error) {
	file, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "transcribe", "upload",
			fmt.Sprintf("cannot open audio file %q", req.AudioPath), err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy audio into form: %w", err)
	}
	if req.Model != "" {
		if err := writer.WriteField("model", req.Model); err != nil {
			return nil, fmt.Errorf("write form field model: %w", err)
		}
	}
	if req.Language != "" {
		if err := writer.WriteField("language", req.Language); err != nil {
			return nil, fmt.Errorf("write form field language: %w", err)
		}
	}
	if err := writer.WriteField("diarize", strconv.FormatBool(req.Diarize)); err != nil {
		return nil, fmt.Errorf("write form field diarize: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/transcribe", &buf)
	if err != nil {
		return nil, fmt.Errorf("build transcribe request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "upload",
			"Modal request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", "upload",
			"Modal rejected the token", nil)
	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "upload",
			fmt.Sprintf("Modal returned %s: %s", resp.Status, strings.TrimSpace(string(payload))), nil)
	}

	var parsed transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "decode",
			"Modal returned malformed JSON", err)
	}
	if strings.TrimSpace(parsed.Text) == "" && len(parsed.Segments) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "decode",
			"Modal returned an empty transcription", nil)
	}

	return &router.Result{
		Text:     parsed.Text,
		Segments: parsed.Segments,
		Language: parsed.Language,
		Model:    parsed.Model,
		Elapsed:  time.Since(start),
	}, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
