package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/require"

	apperrors "github.com/phonelens/phonelens/internal/errors"
)

func TestWriteFatalEnvelope(t *testing.T) {
	ctx := apperrors.WithCorrelationID(context.Background(), "run-7")
	err := apperrors.WrapBrowserUnavailable(ctx, errors.New("no chrome on PATH"), "start browser")
	info, ok := foundry.GetExitCodeInfo(foundry.ExitExternalServiceUnavailable)
	require.True(t, ok)

	var buf bytes.Buffer
	writeFatal(&buf, &info, info.Code, "batch failed", err)

	out := buf.String()
	require.Contains(t, out, "FATAL: batch failed [BROWSER_UNAVAILABLE]: start browser (run: run-7)")
	require.Contains(t, out, "Cause: no chrome on PATH")
	require.Contains(t, out, info.Name)
}

func TestWriteFatalPlainError(t *testing.T) {
	var buf bytes.Buffer
	writeFatal(&buf, nil, 99, "boom", errors.New("disk full"))

	require.Equal(t, "FATAL: boom: disk full\nExit Code: 99\n", buf.String())
}

func TestEnvelopeFields(t *testing.T) {
	require.Len(t, envelopeFields(errors.New("plain")), 1)

	fields := envelopeFields(apperrors.NewConfigInvalidError("bad store driver"))
	keys := make([]string, 0, len(fields))
	for _, field := range fields {
		keys = append(keys, field.Key)
	}
	require.Contains(t, keys, "error_code")
	require.Contains(t, keys, "correlation_id")
}
