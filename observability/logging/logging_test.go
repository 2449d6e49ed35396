package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWithOptionsWritesJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "vaultd.log")
	logger, closer := SetupWithOptions(Options{
		Service: "vaultd",
		Env:     "test",
		Level:   "debug",
		Output:  &buf,
		File:    &FileOptions{Path: path, MaxSizeMB: 1},
	})
	logger.Debug("settled", slog.Uint64("op_id", 7), slog.String("token", "abc"))
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["message"] != "settled" || line["severity"] != "DEBUG" {
		t.Fatalf("unexpected line %v", line)
	}
	if line["service"] != "vaultd" || line["env"] != "test" {
		t.Fatalf("missing service attrs: %v", line)
	}
	if line["token"] != RedactedValue {
		t.Fatalf("expected token redacted, got %v", line["token"])
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("expected timestamp key")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"settled"`) {
		t.Fatalf("log file missing entry: %s", data)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("hmac_secret", "s3cr3t"); got.Value.String() != RedactedValue {
		t.Fatalf("expected secret masked, got %v", got)
	}
	if got := MaskField("op_id", "12"); got.Value.String() != "12" {
		t.Fatalf("allowlisted key masked: %v", got)
	}
	if got := MaskField("receiver", ""); got.Value.String() != "" {
		t.Fatalf("empty values stay empty")
	}
	if !IsSensitive(" Authorization ") {
		t.Fatalf("expected authorization to be sensitive")
	}
}
