package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.aimuz.me/huddle/pcm"
)

// WhisperLocal implements the Provider interface using local whisper.cpp.
// It uses the whisper-cli tool for transcription.
type WhisperLocal struct {
	modelPath string
	modelSize string // "tiny", "base", "small", "medium", "large"
	binPath   string // Path to whisper-cli binary
	language  string
	prompt    string

	mu            sync.RWMutex
	ready         bool
	setupProgress int
}

// WhisperLocalConfig holds configuration for WhisperLocal.
type WhisperLocalConfig struct {
	ModelSize string // "tiny", "base", "small", "medium", "large"
	ModelDir  string // Directory to store models
	BinPath   string // Path to whisper-cli binary (optional, searched if not set)
	Language  string
	Prompt    string
}

// Model sizes and their approximate download sizes.
var modelSizes = map[string]struct {
	URL  string
	Size int64 // Approximate size in bytes
}{
	"tiny":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin", 75 * 1024 * 1024},
	"base":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin", 150 * 1024 * 1024},
	"small":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin", 500 * 1024 * 1024},
	"medium": {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin", 1500 * 1024 * 1024},
	"large":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin", 3000 * 1024 * 1024},
}

// NewWhisperLocal creates a new WhisperLocal provider.
func NewWhisperLocal(cfg WhisperLocalConfig) (*WhisperLocal, error) {
	if cfg.ModelSize == "" {
		cfg.ModelSize = "base"
	}
	if _, ok := modelSizes[cfg.ModelSize]; !ok {
		return nil, fmt.Errorf("invalid model size: %s", cfg.ModelSize)
	}

	if cfg.ModelDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.ModelDir = filepath.Join(homeDir, ".huddle", "models")
	}

	binPath := cfg.BinPath
	if binPath != "" {
		if _, err := os.Stat(binPath); err != nil {
			binPath = ""
		}
	} else {
		binPath = findWhisperBinary()
	}

	language := cfg.Language
	if language == "auto" {
		language = ""
	}

	w := &WhisperLocal{
		modelSize:     cfg.ModelSize,
		modelPath:     filepath.Join(cfg.ModelDir, fmt.Sprintf("ggml-%s.bin", cfg.ModelSize)),
		binPath:       binPath,
		language:      language,
		prompt:        cfg.Prompt,
		setupProgress: -1,
	}

	// Ready only if both binary and model exist
	if _, err := os.Stat(w.modelPath); err == nil && w.binPath != "" {
		w.ready = true
		w.setupProgress = 100
	}

	return w, nil
}

func (w *WhisperLocal) Name() string { return "whisper-local" }
func (w *WhisperLocal) DisplayName() string {
	if w.binPath == "" {
		return fmt.Sprintf("Whisper Local (%s) [whisper.cpp not installed]", w.modelSize)
	}
	return fmt.Sprintf("Whisper Local (%s)", w.modelSize)
}
func (w *WhisperLocal) IsLocal() bool { return true }

// HasBinary returns true if the whisper-cli binary is available.
func (w *WhisperLocal) HasBinary() bool { return w.binPath != "" }

func (w *WhisperLocal) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

func (w *WhisperLocal) SetupProgress() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.setupProgress
}

// Setup downloads the whisper model if needed.
func (w *WhisperLocal) Setup(ctx context.Context, progress func(percent int)) error {
	if w.binPath == "" {
		return fmt.Errorf("whisper.cpp binary not found: %w", ErrNotReady)
	}

	w.mu.Lock()
	if w.ready {
		w.mu.Unlock()
		return nil
	}
	w.setupProgress = 0
	w.mu.Unlock()

	modelInfo := modelSizes[w.modelSize]

	if err := os.MkdirAll(filepath.Dir(w.modelPath), 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	slog.Info("downloading whisper model", "size", w.modelSize, "path", w.modelPath)
	if err := w.downloadModel(ctx, modelInfo.URL, modelInfo.Size, progress); err != nil {
		return fmt.Errorf("download model: %w", err)
	}

	w.mu.Lock()
	w.ready = true
	w.setupProgress = 100
	w.mu.Unlock()

	if progress != nil {
		progress(100)
	}
	return nil
}

func (w *WhisperLocal) downloadModel(ctx context.Context, url string, expectedSize int64, progress func(percent int)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status: %d", resp.StatusCode)
	}

	tmpPath := w.modelPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // Clean up on failure
	}()

	var downloaded int64
	buf := make([]byte, 32*1024)
	lastProgress := 0

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write file: %w", werr)
			}
			downloaded += int64(n)

			if expectedSize > 0 && progress != nil {
				pct := min(int(downloaded*100/expectedSize), 99)
				if pct > lastProgress {
					lastProgress = pct
					w.mu.Lock()
					w.setupProgress = pct
					w.mu.Unlock()
					progress(pct)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpPath, w.modelPath); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// Transcribe writes audio to a temporary WAV file and runs whisper-cli on it.
func (w *WhisperLocal) Transcribe(ctx context.Context, audio []byte, f pcm.Format) (string, error) {
	if !w.IsReady() {
		return "", fmt.Errorf("whisper local: %w: model or binary missing", ErrNotReady)
	}

	wavData, err := pcm.EncodeWAV(audio, f)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	tmp, err := os.CreateTemp("", "huddle-*.wav")
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(wavData); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close audio file: %w", err)
	}

	args := []string{
		"-m", w.modelPath,
		"-f", tmp.Name(),
		"-nt", // No timestamps
		"-np", // No progress prints
	}
	if w.language != "" {
		args = append(args, "-l", w.language)
	}
	if w.prompt != "" {
		args = append(args, "--prompt", w.prompt)
	}

	cmd := exec.CommandContext(ctx, w.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper-cli failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return strings.Join(strings.Fields(stdout.String()), " "), nil
}

func findWhisperBinary() string {
	// Common binary names - whisper-cli is the current upstream name
	names := []string{"whisper-cli", "whisper-cpp", "whisper"}

	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	homeDir, _ := os.UserHomeDir()
	locations := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		filepath.Join(homeDir, ".local", "bin"),
		filepath.Join(homeDir, "whisper.cpp", "build", "bin"),
	}

	for _, loc := range locations {
		for _, name := range names {
			path := filepath.Join(loc, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func (w *WhisperLocal) Close() error {
	return nil
}
