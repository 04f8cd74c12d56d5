package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/MikeSquared-Agency/threadfold/internal/logging"
)

func TestNew_Console(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", "console", buf)
	gt.V(t, logger).NotNil()

	logger.Info("folded batch", "batch_id", "sess-1")
	gt.S(t, buf.String()).Contains("folded batch")
	gt.S(t, buf.String()).Contains("sess-1")
}

func TestNew_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", "json", buf)

	logger.Info("run complete", "conversations", 3)

	var line map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	gt.V(t, line["msg"]).Equal("run complete")
	gt.V(t, line["conversations"]).Equal(float64(3))
}

func TestNew_Levels(t *testing.T) {
	testCases := []struct {
		level       string
		expectDebug bool
		expectInfo  bool
		expectWarn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"warning", false, false, true},
		{"error", false, false, false},
		{"DEBUG", true, true, true},
		{"invalid", false, true, true},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := logging.New(tc.level, "json", buf)

			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")

			output := buf.String()
			check := func(expect bool, msg string) {
				if expect {
					gt.S(t, output).Contains(msg)
				} else {
					gt.S(t, output).NotContains(msg)
				}
			}
			check(tc.expectDebug, "debug message")
			check(tc.expectInfo, "info message")
			check(tc.expectWarn, "warn message")
			gt.S(t, output).Contains("error message")
		})
	}
}
