package errors

import (
	"context"
	stderrors "errors"
	"testing"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestWrapUsesContextCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "run-123")

	env := WrapDatabaseError(ctx, stderrors.New("disk full"), "failed to save result")
	require.Equal(t, "DATABASE_ERROR", env.Code)
	require.Equal(t, "failed to save result", env.Message)
	require.Equal(t, "run-123", env.CorrelationID)
	require.Equal(t, "disk full", env.Context["wrapped_error"])
}

func TestWrapGeneratesCorrelationID(t *testing.T) {
	env := WrapBrowserUnavailable(context.Background(), stderrors.New("exec: chrome not found"), "failed to start browser")
	require.Equal(t, "BROWSER_UNAVAILABLE", env.Code)
	_, err := uuid.Parse(env.CorrelationID)
	require.NoError(t, err)
}

func TestWrapWithoutCause(t *testing.T) {
	env := WrapInvalidInput(nil, nil, "no phone numbers given")
	require.Equal(t, "INVALID_INPUT", env.Code)
	require.NotContains(t, env.Context, "wrapped_error")
}

func TestEnsureEnvelope(t *testing.T) {
	original := NewLoginRequiredError("login not detected")
	require.Same(t, original, EnsureEnvelope(original))

	env := EnsureEnvelope(stderrors.New("boom"))
	require.Equal(t, "INTERNAL_ERROR", env.Code)
	require.Equal(t, gferrors.SeverityHigh, env.Severity)
	require.Equal(t, "boom", env.Context["wrapped_error"])

	env = EnsureEnvelope(nil)
	require.Equal(t, gferrors.SeverityCritical, env.Severity)
}
