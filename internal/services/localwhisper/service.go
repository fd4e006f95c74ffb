package localwhisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/router"
	"murmur/internal/services"
)

// BackendName is the router identifier for this backend.
const BackendName = "local"

// Command names and fixed CPU settings for the uvx invocation.
const (
	UVXCommand     = "uvx"
	whisperPackage = "whisperx"
	cpuDevice      = "cpu"
	cpuComputeType = "float32"
	outputFormat   = "json"
)

// Config captures runtime settings for local transcription.
type Config struct {
	// Model is the Whisper model to load, e.g. "large-v3".
	Model string
	// WorkDir receives intermediate output files. Empty means the system
	// temp directory.
	WorkDir string
}

// Service transcribes audio on the local CPU via uvx-managed WhisperX.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a local transcription service.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Name implements router.Backend.
func (s *Service) Name() string { return BackendName }

// Available reports whether uvx is on PATH. No network probe is needed; the
// CPU is always reachable.
func (s *Service) Available(_ context.Context) error {
	if s.commandRunner != nil {
		return nil
	}
	if _, err := exec.LookPath(UVXCommand); err != nil {
		return services.Wrap(services.ErrExternalTool, "transcribe", "probe",
			"uvx not found on PATH", err)
	}
	return nil
}

// Transcribe runs WhisperX on the file and parses its JSON output.
func (s *Service) Transcribe(ctx context.Context, req router.Request) (*router.Result, error) {
	if req.AudioPath == "" {
		return nil, services.Wrap(services.ErrValidation, "transcribe", "local",
			"audio path is required", nil)
	}

	outputDir, err := os.MkdirTemp(s.cfg.WorkDir, "whisper-local-")
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	defer os.RemoveAll(outputDir)

	args := s.buildArgs(req, outputDir)
	start := time.Now()
	if err := s.run(ctx, UVXCommand, args...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "local",
			"whisperx execution failed", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	result, err := loadResult(jsonPath)
	if err != nil {
		return nil, err
	}
	result.Model = s.model(req)
	result.Elapsed = time.Since(start)
	return result, nil
}

func (s *Service) buildArgs(req router.Request, outputDir string) []string {
	args := []string{
		whisperPackage,
		req.AudioPath,
		"--model", s.model(req),
		"--device", cpuDevice,
		"--compute_type", cpuComputeType,
		"--output_dir", outputDir,
		"--output_format", outputFormat,
	}
	if req.Language != "" {
		args = append(args, "--language", req.Language)
	}
	if req.Diarize {
		args = append(args, "--diarize")
	}
	return args
}

func (s *Service) model(req router.Request) string {
	if req.Model != "" {
		return req.Model
	}
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return "large-v3"
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// whisperOutput mirrors the WhisperX JSON file layout.
type whisperOutput struct {
	Language string `json:"language"`
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Text    string  `json:"text"`
		Speaker string  `json:"speaker"`
	} `json:"segments"`
}

func loadResult(jsonPath string) (*router.Result, error) {
	payload, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "local",
			fmt.Sprintf("whisperx produced no output at %s", jsonPath), err)
	}
	var parsed whisperOutput
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "local",
			"whisperx output is not valid JSON", err)
	}

	result := &router.Result{Language: parsed.Language}
	var text strings.Builder
	for _, segment := range parsed.Segments {
		trimmed := strings.TrimSpace(segment.Text)
		if trimmed == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(trimmed)
		result.Segments = append(result.Segments, router.Segment{
			Start:   segment.Start,
			End:     segment.End,
			Speaker: segment.Speaker,
			Text:    trimmed,
		})
	}
	result.Text = text.String()
	if result.Text == "" {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "local",
			"whisperx produced an empty transcription", nil)
	}
	return result, nil
}
