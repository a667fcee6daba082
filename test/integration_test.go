//go:build integration

package test_test

import (
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("MURMUR_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "MURMUR_TEST_BIN not set; build with: go build -o murmur-test . && MURMUR_TEST_BIN=$PWD/murmur-test go test -tags integration ./test")
		os.Exit(1)
	}

	if err := os.MkdirAll("data", 0755); err != nil {
		fmt.Fprintf(os.Stderr, "create data dir: %v\n", err)
		os.Exit(1)
	}
	silencePath := filepath.Join("data", "silence.wav")
	if err := generateSilenceWAV(silencePath, 16000, 1.0); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate silence.wav: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	os.Remove(silencePath)
	os.Exit(code)
}

func generateSilenceWAV(path string, sampleRate int, durationS float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	return os.WriteFile(path, buf, 0644)
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

// runMurmur runs the binary in -test mode with every writable path in a
// temp dir. MURMUR_MODELS_DIR from the environment is kept so a downloaded
// model can be reused across runs.
func runMurmur(t *testing.T, stdin string, args ...string) (logDir, sharedDir string) {
	t.Helper()
	root := t.TempDir()
	logDir = filepath.Join(root, "logs")
	sharedDir = filepath.Join(root, "shared")

	modelsDir := os.Getenv("MURMUR_MODELS_DIR")
	if modelsDir == "" {
		modelsDir = filepath.Join(root, "models")
	}

	cmdArgs := append([]string{"-logpath", logDir}, args...)
	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(),
		"XDG_CONFIG_HOME="+root,
		"MURMUR_SHARED_DIR="+sharedDir,
		"MURMUR_MODELS_DIR="+modelsDir,
		"MURMUR_HISTORY_DB="+filepath.Join(root, "history.db"),
		"MURMUR_PREFERENCES="+filepath.Join(root, "preferences.yaml"),
		"MURMUR_IPC_SOCKET="+filepath.Join(root, "murmur.sock"),
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("murmur exited with error: %v\noutput: %s", err, out)
	}
	return logDir, sharedDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func requireModel(t *testing.T) {
	t.Helper()
	dir := os.Getenv("MURMUR_MODELS_DIR")
	if dir == "" {
		t.Skip("MURMUR_MODELS_DIR not set")
	}
	if _, err := os.Stat(filepath.Join(dir, "base.en", "ggml-base.en.bin")); err != nil {
		t.Skip("base.en not downloaded; run: murmur -download base.en")
	}
}

func requireWAV(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("data", name)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("%s missing", path)
	}
	return path
}

func TestPushToTalkRecordsAndStops(t *testing.T) {
	logDir, _ := runMurmur(t, cmds("KEYDOWN", "SLEEP 400", "KEYUP", "WAIT", "QUIT"), "-test", "data/silence.wav")
	diag := readLog(t, logDir, "diagnostics_log.txt")
	for _, want := range []string{"phase=recording", "phase=stopped", "mode=push-to-talk"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics log missing %q\n%s", want, diag)
		}
	}
}

func TestHybridTapIsHandsFree(t *testing.T) {
	stdin := cmds("KEYDOWN", "KEYUP", "SLEEP 600", "KEYDOWN", "KEYUP", "WAIT", "QUIT")
	logDir, _ := runMurmur(t, stdin, "-hybrid", "-test", "data/silence.wav")
	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "mode=hands-free") {
		t.Errorf("expected hands-free session\n%s", diag)
	}
	if strings.Contains(diag, "phase=mode") {
		t.Errorf("tap must not promote to push-to-talk\n%s", diag)
	}
}

func TestHybridHoldPromotes(t *testing.T) {
	stdin := cmds("KEYDOWN", "SLEEP 700", "KEYUP", "WAIT", "QUIT")
	logDir, _ := runMurmur(t, stdin, "-hybrid", "-longpress", "200ms", "-test", "data/silence.wav")
	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "phase=mode") || !strings.Contains(diag, "mode=push-to-talk") {
		t.Errorf("expected promotion to push-to-talk\n%s", diag)
	}
}

func TestMissingModelKeepsArtifact(t *testing.T) {
	stdin := cmds("KEYDOWN", "SLEEP 300", "KEYUP", "WAIT", "QUIT")
	_, shared := runMurmur(t, stdin, "-model", "tiny.en", "-test", "data/silence.wav")
	matches, _ := filepath.Glob(filepath.Join(shared, "recordings", "*.wav"))
	if len(matches) != 1 {
		t.Errorf("expected the failed recording to be kept, found %v", matches)
	}
}

func TestTranscribeWords(t *testing.T) {
	requireModel(t)
	wav := requireWAV(t, "short.wav")
	logDir, shared := runMurmur(t, cmds("KEYDOWN", "SLEEP 3000", "KEYUP", "WAIT", "QUIT"), "-test", wav)
	text := readLog(t, logDir, "transcribe_log.txt")
	if strings.TrimSpace(text) == "" {
		t.Fatal("transcribe_log.txt is empty, expected transcribed words")
	}
	if matches, _ := filepath.Glob(filepath.Join(shared, "recordings", "*.wav")); len(matches) != 0 {
		t.Errorf("artifact not cleaned up after success: %v", matches)
	}
}

func TestAssistantToggle(t *testing.T) {
	requireModel(t)
	stdin := cmds("ASSIST", "SLEEP 500", "ASSIST", "WAIT", "QUIT")
	logDir, _ := runMurmur(t, stdin, "-test", "data/silence.wav")
	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "mode=assistant") {
		t.Errorf("expected assistant session\n%s", diag)
	}
}
