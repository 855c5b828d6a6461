package logger

import (
	"bytes"
	"strings"
	"testing"
)

func initBuffer(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	err := Init(Config{
		Level:   level,
		Format:  FormatText,
		Outputs: []OutputConfig{{Type: OutputStderr, Writer: buf}},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { Shutdown() })
	return buf
}

func TestLogger_InitAndGet(t *testing.T) {
	buf := initBuffer(t, LevelInfo)

	Get().Info("migration started", "phase", "user_data")

	output := buf.String()
	if !strings.Contains(output, "migration started") || !strings.Contains(output, "phase=user_data") {
		t.Errorf("log output missing message: %s", output)
	}
}

func TestLogger_InitTwice(t *testing.T) {
	initBuffer(t, LevelInfo)

	if err := Init(Config{}); err == nil {
		t.Error("expected error on second Init")
	}
}

func TestLogger_NullLogger(t *testing.T) {
	Shutdown()

	logger := Get()
	// 不應該 panic
	logger.Info("should not crash")
	logger.Debug("should not crash")
	logger.With("k", "v").Warn("should not crash")
	logger.Error("should not crash")
}

func TestLogger_Quiet(t *testing.T) {
	t.Setenv(QuietEnv, "true")
	buf := initBuffer(t, LevelDebug)

	Get().Error("not written")

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %s", buf.String())
	}
}

func TestLogger_With(t *testing.T) {
	buf := initBuffer(t, LevelInfo)

	With("component", "userdata").Info("message")

	if output := buf.String(); !strings.Contains(output, "component=userdata") {
		t.Errorf("output missing context: %s", output)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	buf := initBuffer(t, LevelInfo)
	child := With("component", "essential")

	child.Debug("hidden")
	SetLevel(LevelDebug)
	child.Debug("visible")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("debug logged before level change: %s", output)
	}
	if !strings.Contains(output, "visible") {
		t.Errorf("child did not pick up the new level: %s", output)
	}
}

func TestLogger_Shutdown(t *testing.T) {
	initBuffer(t, LevelInfo)
	Get().Info("before shutdown")

	if err := Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if err := Sync(); err != nil {
		t.Errorf("Sync() after shutdown error = %v", err)
	}
}
