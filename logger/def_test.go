package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestUse(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))

	Named("export").Info("done", zap.Int("train", 8))
	S().Debugw("sugared", "val", 2)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "export", entries[0].LoggerName)
	assert.Equal(t, int64(8), entries[0].ContextMap()["train"])
	assert.Equal(t, "sugared", entries[1].Message)
}

func TestInit(t *testing.T) {
	for _, debug := range []bool{true, false} {
		require.NoError(t, Init(debug))
		assert.NotNil(t, Log())
		assert.Equal(t, debug, Log().Core().Enabled(zapcore.DebugLevel))
	}
	Sync()
}
