package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"murmur/internal/services"
)

const defaultBaseURL = "https://www.googleapis.com/drive/v3"

// audioMimePrefixes limits folder listings to recordings; stray documents in
// the watched folder are ignored rather than failed.
var audioMimePrefixes = []string{"audio/", "video/"}

// Config captures connection settings for the Drive API.
type Config struct {
	// BaseURL overrides the Drive API root, for tests.
	BaseURL string
	// Token is the OAuth bearer token.
	Token string
	// FolderID is the watched inbox folder.
	FolderID string
	// ProcessedFolderID receives files after successful processing.
	ProcessedFolderID string
	// Timeout bounds metadata requests. The HTTP client allows 10x for
	// downloads of large recordings.
	Timeout time.Duration
}

// File is one entry in the watched folder.
type File struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
	Created  time.Time
}

// Client talks to the Drive API.
type Client struct {
	cfg         Config
	baseURL     string
	metaTimeout time.Duration
	httpClient  *http.Client
}

// New validates the configuration and returns a client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "download", "configure",
			"Drive token is required", nil)
	}
	if strings.TrimSpace(cfg.FolderID) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "download", "configure",
			"Drive watched folder id is required", nil)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:         cfg,
		baseURL:     base,
		metaTimeout: timeout,
		httpClient:  &http.Client{Timeout: timeout * 10},
	}, nil
}

type listResponse struct {
	Files []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		MimeType    string `json:"mimeType"`
		Size        string `json:"size"`
		CreatedTime string `json:"createdTime"`
	} `json:"files"`
	NextPageToken string `json:"nextPageToken"`
}

// List returns audio files in the watched folder, oldest first.
func (c *Client) List(ctx context.Context) ([]File, error) {
	var files []File
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("q", fmt.Sprintf("'%s' in parents and trashed=false", c.cfg.FolderID))
		query.Set("fields", "nextPageToken,files(id,name,mimeType,size,createdTime)")
		query.Set("orderBy", "createdTime")
		query.Set("pageSize", "100")
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var page listResponse
		if err := c.getJSON(ctx, "/files?"+query.Encode(), &page); err != nil {
			return nil, fmt.Errorf("list watched folder: %w", err)
		}
		for _, entry := range page.Files {
			if !isAudio(entry.MimeType) {
				continue
			}
			size, _ := strconv.ParseInt(entry.Size, 10, 64)
			created, _ := time.Parse(time.RFC3339, entry.CreatedTime)
			files = append(files, File{
				ID:       entry.ID,
				Name:     entry.Name,
				MimeType: entry.MimeType,
				Size:     size,
				Created:  created,
			})
		}
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

// Download streams the file's content to destPath, creating parent
// directories as needed. The write goes through a temp file so a partial
// download never masquerades as a finished one.
func (c *Client) Download(ctx context.Context, fileID, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("ensure staging dir: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"?alt=media", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "download", "fetch",
			"Drive download failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.statusError("download", "fetch", resp)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return services.Wrap(services.ErrTransient, "download", "fetch",
			"Drive download interrupted", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}

// Relocate renames the file and moves it from the watched folder to the
// processed folder in a single metadata update.
func (c *Client) Relocate(ctx context.Context, fileID, newName string) error {
	if strings.TrimSpace(c.cfg.ProcessedFolderID) == "" {
		return services.Wrap(services.ErrConfiguration, "relocate", "configure",
			"Drive processed folder id is required", nil)
	}

	query := url.Values{}
	query.Set("addParents", c.cfg.ProcessedFolderID)
	query.Set("removeParents", c.cfg.FolderID)

	body, err := json.Marshal(map[string]string{"name": newName})
	if err != nil {
		return fmt.Errorf("marshal rename: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPatch,
		"/files/"+url.PathEscape(fileID)+"?"+query.Encode(), strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "relocate", "move",
			"Drive relocate failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.statusError("relocate", "move", resp)
	}
	return nil
}

// Health verifies the token can read the watched folder.
func (c *Client) Health(ctx context.Context) error {
	var metadata struct {
		ID string `json:"id"`
	}
	if err := c.getJSON(ctx, "/files/"+url.PathEscape(c.cfg.FolderID)+"?fields=id", &metadata); err != nil {
		return fmt.Errorf("drive health: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build drive request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	ctx, cancel := context.WithTimeout(ctx, c.metaTimeout)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "download", "list",
			"Drive request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.statusError("download", "list", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode drive response: %w", err)
	}
	return nil
}

func (c *Client) statusError(step, operation string, resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := fmt.Sprintf("Drive returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, step, operation, message, nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, step, operation, message, nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, step, operation, message, nil)
	default:
		return services.Wrap(services.ErrExternalTool, step, operation, message, nil)
	}
}

func isAudio(mimeType string) bool {
	for _, prefix := range audioMimePrefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}
