package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"chatdesk/config"
	"chatdesk/provider/testutil"
)

func TestDebugLogMasksAPIKey(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := config.SetDebugLogger(zap.New(core))
	defer restore()

	h := newHarness(t)
	h.svc.Events = testutil.TextStream("Hi")

	_, err := h.orch.SendMessage(context.Background(), "Hello")
	require.NoError(t, err)
	_, err = h.orch.TestProvider(context.Background(), "anthropic")
	require.NoError(t, err)

	var masked int
	for _, entry := range logs.All() {
		assert.NotContains(t, entry.Message, "sk-ant-test-1234")
		if strings.Contains(entry.Message, "sk-a****1234") {
			masked++
		}
	}
	assert.GreaterOrEqual(t, masked, 2, "request and connection test should log the masked key")
}
