package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestInit(t *testing.T) {
	defer Init(Options{})

	t.Run("Disabled", func(t *testing.T) {
		var buf bytes.Buffer
		Init(Options{Enabled: false, Output: &buf})
		Info("hidden")
		assert.Zero(t, buf.Len())
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		Init(Options{Enabled: true, Format: "json", Output: &buf, Level: slog.LevelDebug})
		Debug("allocated", "size", 64)

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "allocated", rec["msg"])
		assert.Equal(t, float64(64), rec["size"])
	})

	t.Run("LevelFilter", func(t *testing.T) {
		var buf bytes.Buffer
		Init(Options{Enabled: true, Output: &buf, Level: slog.LevelWarn})
		Info("dropped")
		assert.Zero(t, buf.Len())
		Warn("kept")
		assert.Contains(t, buf.String(), "kept")
	})
}

func TestInitWhileLogging(t *testing.T) {
	defer Init(Options{})

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 500; j++ {
				Debug("tick", "worker", i, "n", j)
				Logger().Info("tock")
			}
			return nil
		})
	}
	g.Go(func() error {
		for j := 0; j < 100; j++ {
			Init(Options{Enabled: j%2 == 0, Format: "json", Output: io.Discard, Level: slog.LevelDebug})
		}
		return nil
	})
	require.NoError(t, g.Wait())
	assert.NotNil(t, Logger())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}
