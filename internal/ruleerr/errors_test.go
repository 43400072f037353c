package ruleerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := New(MalformedRule, "rule does not match envelope", "ЕСЛИ 1 ТО")
	assert.Equal(t, `MALFORMED_RULE: rule does not match envelope ("ЕСЛИ 1 ТО")`, err.Error())
}

func TestError_MessageWithoutSubject(t *testing.T) {
	err := New(UnknownAgent, "no table for agent", "")
	assert.Equal(t, "UNKNOWN_AGENT: no table for agent", err.Error())
}

func TestWrap_Unwraps(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(StoreNotFound, "cannot open", "a.db", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestIs_MatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("exec rule: %w", New(UnresolvedColumn, "no column", "E.D"))

	assert.True(t, Is(err, UnresolvedColumn))
	assert.False(t, Is(err, UnresolvedTriplet))
	assert.Equal(t, UnresolvedColumn, CodeOf(err))
}

func TestIs_PlainError(t *testing.T) {
	err := errors.New("plain")
	assert.False(t, Is(err, MalformedRule))
	assert.Equal(t, Code(""), CodeOf(err))
	assert.False(t, Is(nil, MalformedRule))
}
