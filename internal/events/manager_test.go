package events

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestEmitLogsEventPayload(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(zerolog.New(&buf))

	m.Emit(TradeExecuted, "execution", map[string]interface{}{"symbol": "AAPL"})

	out := buf.String()
	assert.Contains(t, out, string(TradeExecuted))
	assert.Contains(t, out, `"module":"execution"`)
	assert.Contains(t, out, "AAPL")
}

func TestEmitErrorCarriesErrorOccurred(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(zerolog.New(&buf))

	m.EmitError("scheduler", errors.New("provider down"), map[string]interface{}{"attempt": 1})

	out := buf.String()
	assert.Contains(t, out, string(ErrorOccurred))
	assert.Contains(t, out, "provider down")
}
