package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"conduit/internal/platform/config"
)

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "conduit.log")
	Init(config.LoggingConfig{Level: "debug", Output: "file", FilePath: path})
	defer Init(config.LoggingConfig{})

	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", zerolog.GlobalLevel())
	}

	jobsLog := Component("jobs")
	jobsLog.Info().Str("job_id", "job_1").Msg("claimed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"component":"jobs"`, `"job_id":"job_1"`, `"service":"conduit"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %s", line, want)
		}
	}
}

func TestInit_UnknownLevelDefaultsToInfo(t *testing.T) {
	Init(config.LoggingConfig{Level: "chatty"})
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("level = %v, want info", zerolog.GlobalLevel())
	}
}
