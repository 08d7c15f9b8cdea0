package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestFileAndAudit(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{
		Level:     "info",
		File:      filepath.Join(dir, "logs", "node.log"),
		AuditFile: filepath.Join(dir, "logs", "audit.log"),
	})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("visible", zap.Int("n", 1))
	l.Audit("tx_accepted", zap.String("id", "0xabc"))
	_ = l.Sync()

	body, err := os.ReadFile(filepath.Join(dir, "logs", "node.log"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "visible")
	assert.NotContains(t, string(body), "hidden")
	assert.NotContains(t, string(body), "tx_accepted")

	audit, err := os.ReadFile(filepath.Join(dir, "logs", "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(audit), `"tx_accepted"`)
	assert.Contains(t, string(audit), `"id":"0xabc"`)
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("dropped")
	l.Audit("dropped")
	assert.NoError(t, l.Sync())
}
