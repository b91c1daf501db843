package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestNewWithWriterWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", false, nil)

	log.Info().
		Str("tenant", "acme").
		Int("count", 3).
		Int64("account_id", 9).
		Bool("staff", false).
		Dur("elapsed", time.Second).
		Msg("resolved")

	line := decodeLine(t, &buf)
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "resolved", line["message"])
	assert.Equal(t, "acme", line["tenant"])
	assert.EqualValues(t, 3, line["count"])
	assert.EqualValues(t, 9, line["account_id"])
	assert.Equal(t, false, line["staff"])
	assert.Contains(t, line, "time")
	assert.Contains(t, line, "caller")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", false, nil)

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "verbose", false, nil)

	log.Debug().Msg("dropped")
	assert.Zero(t, buf.Len())
	log.Info().Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestSensitiveFieldsMasked(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", false, nil)

	log.Error().
		Err(errors.New("boom")).
		Str("password", "hunter2").
		Interface("patient", map[string]any{"birthdate": "1990-01-01", "last_name": "Doe"}).
		Msgf("failed for %s", "jdoe")

	line := decodeLine(t, &buf)
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, DefaultMaskValue, line["password"])
	assert.Equal(t, map[string]any{"birthdate": DefaultMaskValue, "last_name": "Doe"}, line["patient"])
	assert.Equal(t, "failed for jdoe", line["message"])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", false, nil).
		WithFields(map[string]any{"module": "patients", "token": "abc"})

	log.Info().Msg("ready")

	line := decodeLine(t, &buf)
	assert.Equal(t, "patients", line["module"])
	assert.Equal(t, DefaultMaskValue, line["token"])
}

func TestWithContext(t *testing.T) {
	base := NewWithWriter(&bytes.Buffer{}, "info", false, nil)

	assert.Same(t, base, base.WithContext("not a context"))
	assert.Same(t, base, base.WithContext(context.Background()))

	var buf bytes.Buffer
	zl := zerolog.New(&buf).With().Str("request_id", "r-1").Logger()
	ctx := zl.WithContext(context.Background())

	base.WithContext(ctx).Info().Msg("scoped")
	line := decodeLine(t, &buf)
	assert.Equal(t, "r-1", line["request_id"])
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Info().Str("k", "v").Msg("discarded")
	})
}
