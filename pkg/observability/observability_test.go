package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caster-hub/caster/pkg/observability"
)

func TestNewWithoutEndpointIsNoOp(t *testing.T) {
	p, err := observability.New(context.Background(), observability.Config{ServiceName: "caster-test"})
	require.NoError(t, err)

	ctx, span := p.StartSpan(context.Background(), "unit")
	assert.NotNil(t, ctx)
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"DEBUG", "INFO", "WARN", "ERROR", "bogus"} {
		logger := observability.NewLogger(level)
		assert.NotNil(t, logger)
	}
}
