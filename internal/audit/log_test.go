package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentdesk.org/internal/auth"
	"rentdesk.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	original := obs.Logger()
	var buf bytes.Buffer
	obs.SetLogger(obs.NewLogger(&buf, obs.FormatJSON, "info"))
	t.Cleanup(func() { obs.SetLogger(original) })
	return &buf
}

func TestLogEvent(t *testing.T) {
	buf := captureLog(t)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithUser(ctx, "42", "ops@example.com")

	require.NoError(t, LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["type"])
	assert.Equal(t, "audit.test", entry["event"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "42", entry["user_id"])
	fields, ok := entry["fields"].(map[string]any)
	require.True(t, ok, "fields missing: %v", entry)
	assert.Equal(t, "bar", fields["foo"])
}

func TestLogEventRequiresName(t *testing.T) {
	assert.Error(t, LogEvent(context.Background(), "  ", nil))
}

func TestMutationOutcome(t *testing.T) {
	buf := captureLog(t)

	Mutation(context.Background(), "deleteRole", errors.New("409 conflict"), []string{"Role:3", "Role:LIST"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	fields := entry["fields"].(map[string]any)
	assert.Equal(t, "deleteRole", fields["endpoint"])
	assert.Equal(t, "failure", fields["outcome"])
	assert.Equal(t, []any{"Role:3", "Role:LIST"}, fields["invalidated"])
}
