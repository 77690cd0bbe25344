package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitLoggerLevels(t *testing.T) {
	logger, err := InitLogger(Options{Level: "debug"})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected JSON formatter, got %T", logger.Formatter)
	}
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	if _, err := InitLogger(Options{Level: "shout"}); err == nil {
		t.Fatalf("bad level must fail")
	}
}

func TestInitLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "edgeshim.log")
	logger, err := InitLogger(Options{
		Level:    "info",
		FilePath: path,
		MaxSize:  1,
	})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	logger.WithField("action", "startup").Info("file output check")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("log file is empty")
	}
}

func TestFieldHelpers(t *testing.T) {
	f := BaseFields("startup", "/etc/edgeshim/config.toml")
	if f["action"] != "startup" || f["configPath"] != "/etc/edgeshim/config.toml" {
		t.Fatalf("unexpected base fields: %v", f)
	}
	h := HookFields("send_response", "headerstamp", "txn-1")
	if h["stage"] != "send_response" || h["plugin"] != "headerstamp" || h["txn"] != "txn-1" {
		t.Fatalf("unexpected hook fields: %v", h)
	}
	x := TxnFields("txn-1", "GET", "example.com", 200)
	if x["status"] != 200 || x["method"] != "GET" {
		t.Fatalf("unexpected txn fields: %v", x)
	}
}
