// Package screen captures the visible screen and extracts its text with an
// external OCR tool.
package screen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/mattn/go-shellwords"

	"murmur/log"
	"murmur/permission"
)

var (
	ErrCaptureUnavailable = errors.New("screen capture unavailable")
	ErrImageDecode        = errors.New("screenshot could not be decoded")
	ErrOCRFailed          = errors.New("text recognition failed")
)

const (
	DefaultOCRCommand = "tesseract {in} stdout"

	outToken = "{out}"
	inToken  = "{in}"
)

// DefaultCaptureCommand picks a screenshot tool for the platform and
// display server.
func DefaultCaptureCommand(goos string, getenv func(string) string) string {
	switch {
	case goos == "darwin":
		return "screencapture -x {out}"
	case getenv("WAYLAND_DISPLAY") != "":
		return "grim {out}"
	case getenv("DISPLAY") != "":
		return "import -window root {out}"
	}
	return ""
}

type Gate interface {
	Ensure(ctx context.Context, c permission.Capability) error
}

type Config struct {
	CaptureCommand string
	OCRCommand     string
	TempDir        string
}

type Helper struct {
	capture []string
	ocr     []string
	tempDir string
	gate    Gate
}

// New parses the configured commands. An empty capture command means the
// platform default; a platform without one still constructs, and every
// capture reports ErrCaptureUnavailable.
func New(cfg Config, gate Gate) (*Helper, error) {
	captureCmd := cfg.CaptureCommand
	if captureCmd == "" {
		captureCmd = DefaultCaptureCommand(runtime.GOOS, os.Getenv)
	}
	ocrCmd := cfg.OCRCommand
	if ocrCmd == "" {
		ocrCmd = DefaultOCRCommand
	}

	h := &Helper{tempDir: cfg.TempDir, gate: gate}
	var err error
	if captureCmd != "" {
		if h.capture, err = parse(captureCmd, outToken); err != nil {
			return nil, fmt.Errorf("parse capture command: %w", err)
		}
	}
	if h.ocr, err = parse(ocrCmd, inToken); err != nil {
		return nil, fmt.Errorf("parse ocr command: %w", err)
	}
	return h, nil
}

func parse(command, token string) ([]string, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("command empty")
	}
	if !strings.Contains(command, token) {
		return nil, fmt.Errorf("command %q lacks %s placeholder", command, token)
	}
	return args, nil
}

func substitute(args []string, token, value string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = strings.ReplaceAll(a, token, value)
	}
	return out
}

// CaptureVisibleText screenshots the screen and returns the recognized text.
func (h *Helper) CaptureVisibleText(ctx context.Context) (string, error) {
	if h.capture == nil {
		return "", fmt.Errorf("%w: no screenshot tool for this platform", ErrCaptureUnavailable)
	}
	if h.gate != nil {
		if err := h.gate.Ensure(ctx, permission.ScreenCapture); err != nil {
			return "", fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
		}
	}

	tmp, err := os.CreateTemp(h.tempDir, "murmur-screen-*.png")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	shot := tmp.Name()
	tmp.Close()
	defer os.Remove(shot)

	args := substitute(h.capture, outToken, shot)
	if _, err := exec.LookPath(args[0]); err != nil {
		return "", fmt.Errorf("%w: %s not found", ErrCaptureUnavailable, args[0])
	}
	if _, err := run(ctx, args); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}

	f, err := os.Open(shot)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		// screencapture writes an empty file when permission is missing
		if info, statErr := os.Stat(shot); statErr == nil && info.Size() == 0 {
			return "", fmt.Errorf("%w: screenshot is empty", ErrCaptureUnavailable)
		}
		return "", fmt.Errorf("%w: %w", ErrImageDecode, err)
	}
	b := img.Bounds()
	log.Infof("screen captured %dx%d", b.Dx(), b.Dy())

	out, err := run(ctx, substitute(h.ocr, inToken, shot))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOCRFailed, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", args[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", args[0], err)
	}
	return stdout.Bytes(), nil
}
