package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xn1ku/nexusvault/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"local environment", config.EnvLocal, "error", true, true},
		{"dev environment", config.EnvDev, "info", true, true},
		{"prod environment", config.EnvProd, "info", false, true},
		{"prod warn", config.EnvProd, "warn", false, false},
		{"prod bad level", config.EnvProd, "loud", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.env, tt.level)
			require.NotNil(t, l)
			ctx := t.Context()
			assert.Equal(t, tt.wantDebug, l.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tt.wantInfo, l.Enabled(ctx, slog.LevelInfo))
		})
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, config.EnvProd, "info").Info("store opened", "backend", "memory")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "store opened", entry["msg"])
	assert.Equal(t, "memory", entry["backend"])
}
