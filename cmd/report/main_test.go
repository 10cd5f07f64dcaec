package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"delivery-sla-lab/internal/app"
	"delivery-sla-lab/internal/config"
)

func TestRunVerify_NoCache(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.OutputDir = t.TempDir()

	// Returns before touching the source
	code := runVerify(context.Background(), cfg, &app.Stores{}, zap.NewNop())
	assert.Equal(t, 1, code)
}
