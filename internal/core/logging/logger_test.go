package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponent(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	Install(zerolog.New(&buf))

	ctx := WithPassID(WithAccount(context.Background(), "work@gitlab.com"), "pass-1")

	logger := Component("engine")
	logger.Info().Ctx(ctx).Msg("sync finished")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "engine", entry["cmp"])
	assert.Equal(t, "sync finished", entry["message"])
	assert.Equal(t, "work@gitlab.com", entry["account"])
	assert.Equal(t, "pass-1", entry["pass_id"])
}
