package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"murmur/internal/config"
)

const userAgent = "Murmur/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyProcessingCompleted(ctx context.Context, inputName, backend string, duration time.Duration) error
	NotifyBatchCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyTranscriptSaved(ctx context.Context, inputName, backend string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		completions: cfg.Notifications.Completions,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	completions bool
	errors      bool
}

func (n *ntfyService) NotifyProcessingCompleted(ctx context.Context, inputName, backend string, duration time.Duration) error {
	if !n.completions {
		return nil
	}
	inputName = strings.TrimSpace(inputName)
	message := fmt.Sprintf("Notes ready: %s", inputName)
	if backend != "" {
		message = fmt.Sprintf("%s\nTranscribed via %s in %s", message, backend, roundDuration(duration))
	}
	data := payload{
		title:   "Murmur - Complete",
		message: message,
		tags:    []string{"murmur", "pipeline", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.completions {
		return nil
	}
	durationText := roundDuration(duration)

	var title, message string
	if failed == 0 {
		title = "Murmur - Batch Complete"
		message = fmt.Sprintf("Batch complete: %d recordings processed in %s", processed, durationText)
	} else {
		title = "Murmur - Batch Complete (with errors)"
		message = fmt.Sprintf("Batch complete: %d succeeded, %d failed in %s", processed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"murmur", "batch", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTranscriptSaved(ctx context.Context, inputName, backend string) error {
	if !n.errors {
		return nil
	}
	inputName = strings.TrimSpace(inputName)
	data := payload{
		title: "Murmur - Analysis Pending",
		message: fmt.Sprintf("Transcribed %s via %s but analysis failed; will retry on the next pass",
			inputName, backend),
		tags: []string{"murmur", "analysis", "deferred"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Murmur - Error",
		message:  builder.String(),
		tags:     []string{"murmur", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Murmur - Test",
		message:  "Notification system test",
		tags:     []string{"murmur", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func roundDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) NotifyProcessingCompleted(context.Context, string, string, time.Duration) error {
	return nil
}

func (noopService) NotifyBatchCompleted(context.Context, int, int, time.Duration) error {
	return nil
}

func (noopService) NotifyTranscriptSaved(context.Context, string, string) error {
	return nil
}

func (noopService) NotifyError(context.Context, error, string) error {
	return nil
}

func (noopService) TestNotification(context.Context) error {
	return nil
}
