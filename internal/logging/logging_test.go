package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"whatsapp-bot/internal/config"
)

func TestInitWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	logger, err := Init(&config.Config{LogMode: "production", LogLevel: "info", LogFile: path})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer zap.ReplaceGlobals(zap.NewNop())

	zap.L().Info("connection opened", zap.String("status", "connecting"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if !strings.Contains(string(data), "connection opened") {
		t.Errorf("expected log line in file, got %q", string(data))
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	_, err := Init(&config.Config{LogLevel: "chatty"})
	if err == nil {
		t.Fatal("expected error for unknown level")
	}
	if errors.Cause(err) == err || !strings.Contains(err.Error(), `invalid log level "chatty"`) {
		t.Errorf("parse error should be wrapped with the level, got %v", err)
	}
}

func TestWALoggerSub(t *testing.T) {
	l := WALogger("WhatsApp").Sub("Client")
	// must not panic against the nop global
	l.Debugf("hello %s", "world")
	l.Warnf("warn %d", 1)
}
