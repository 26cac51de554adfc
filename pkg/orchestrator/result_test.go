package orchestrator

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestResult_Display(t *testing.T) {
	require.Equal(t, "4", Ok("4").Display())
	require.Equal(t, "Error: Run failed", Err(KindJobFailed, "Run failed").Display())
	require.Equal(t, "ok", Ok("").Outcome())
	require.Equal(t, "timeout", Err(KindTimeout, "x").Outcome())
}

func TestResult_Err(t *testing.T) {
	require.NoError(t, Ok("x").Err())

	err := Err(KindTimeout, "too slow").Err()
	var turnErr *TurnError
	require.True(t, errors.As(err, &turnErr))
	require.Equal(t, KindTimeout, turnErr.Kind)
	require.Equal(t, "timeout: too slow", err.Error())
}

func TestResult_ErrNotInitialized(t *testing.T) {
	require.ErrorIs(t, Err(KindNotInitialized, "x").Err(), ErrNotInitialized)
	require.NotErrorIs(t, Err(KindTimeout, "x").Err(), ErrNotInitialized)
}
