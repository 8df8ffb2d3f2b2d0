package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHelpersWriteToGlobalLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	Debug("dbg", zap.Int("a", 1))
	Info("inf")
	Warn("wrn")
	Error("err", zap.String("user", "alice"))

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "err", entries[3].Message)
	assert.Equal(t, "alice", entries[3].ContextMap()["user"])
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init("loud"))
}

func TestSetNilFallsBackToNop(t *testing.T) {
	Set(nil)
	assert.NotNil(t, L())
	Info("dropped")
}
