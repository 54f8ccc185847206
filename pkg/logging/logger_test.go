package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// pointAtTempDir redirects the package log directory at a temp dir and
// resets the run ID so each test gets a fresh log file.
func pointAtTempDir(t *testing.T) string {
	t.Helper()

	origLogDir, origLogDirErr := logDir, logDirErr
	origRunID := runID
	t.Cleanup(func() {
		logDir, logDirOnce, logDirErr = origLogDir, sync.Once{}, origLogDirErr
		runID, runIDOnce = origRunID, sync.Once{}
	})

	dir := t.TempDir()
	logDir = dir
	logDirOnce = sync.Once{}
	logDirErr = nil
	runID = ""
	runIDOnce = sync.Once{}
	return dir
}

func TestNewLoggerWritesFormattedLines(t *testing.T) {
	dir := pointAtTempDir(t)

	logger, err := NewLogger("growth")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	logger.Infof("generated %d personas", 3)
	logger.Warnf("retrying")

	data, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[growth] [INFO] generated 3 personas") {
		t.Errorf("missing info line, got:\n%s", content)
	}
	if !strings.Contains(content, "[growth] [WARN] retrying") {
		t.Errorf("missing warn line, got:\n%s", content)
	}
	if filepath.Dir(logger.LogPath()) != dir {
		t.Errorf("log file %s not under %s", logger.LogPath(), dir)
	}
}

func TestComponentsShareOneRunFile(t *testing.T) {
	pointAtTempDir(t)

	first, err := NewLogger("orchestrator")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer first.Close()
	second, err := NewLogger("recorder")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer second.Close()

	if first.LogPath() != second.LogPath() {
		t.Errorf("components got different files: %s vs %s", first.LogPath(), second.LogPath())
	}

	first.Infof("from orchestrator")
	second.Errorf("from recorder")

	data, err := os.ReadFile(first.LogPath())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[orchestrator] [INFO] from orchestrator") {
		t.Errorf("missing first component line, got:\n%s", content)
	}
	if !strings.Contains(content, "[recorder] [ERROR] from recorder") {
		t.Errorf("missing second component line, got:\n%s", content)
	}
}

func TestLogFileNameCarriesRunID(t *testing.T) {
	pointAtTempDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	name := filepath.Base(logger.LogPath())
	if !strings.HasSuffix(name, "-selftree.log") {
		t.Errorf("unexpected log file name %q", name)
	}
	if strings.TrimSuffix(name, "-selftree.log") == "" {
		t.Errorf("log file name %q has no run ID", name)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	pointAtTempDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestFallbackLoggerWhenDirectoryUnavailable(t *testing.T) {
	dir := pointAtTempDir(t)

	// A regular file where the directory should be makes MkdirAll fail.
	blocked := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	logDir = blocked

	logger, err := NewLogger("test")
	if err == nil {
		t.Fatal("expected an error for an unusable log directory")
	}
	if logger == nil {
		t.Fatal("expected a fallback logger alongside the error")
	}
	defer logger.Close()

	if logger.LogPath() != "" {
		t.Errorf("fallback logger has a file path %q", logger.LogPath())
	}
	logger.Infof("still works")
}
