package inference

import (
	"context"

	"github.com/agentmarket/backend/internal/application/agent"
	"go.uber.org/zap"
)

// FallbackCompleter wraps a primary completer and answers with a
// canned offline reply when the primary fails at call time. The
// buyer's usage unit is consumed either way, so a degraded reply beats
// a hard error.
type FallbackCompleter struct {
	primary agent.Completer
	backup  *OfflineCompleter
	logger  *zap.Logger
}

var _ agent.Completer = (*FallbackCompleter)(nil)

// NewFallbackCompleter creates a completer that degrades to canned
// replies on primary failure
func NewFallbackCompleter(primary agent.Completer, logger *zap.Logger) *FallbackCompleter {
	return &FallbackCompleter{
		primary: primary,
		backup:  NewOfflineCompleter(),
		logger:  logger,
	}
}

// Complete tries the primary provider and falls back to the canned
// reply on any error. Context cancellation is not papered over, the
// caller has already gone away.
func (c *FallbackCompleter) Complete(ctx context.Context, modelRef, systemPrompt, prompt string) (string, error) {
	reply, err := c.primary.Complete(ctx, modelRef, systemPrompt, prompt)
	if err == nil {
		return reply, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	c.logger.Warn("Inference provider failed, serving canned reply",
		zap.String("model_ref", modelRef),
		zap.Error(err))
	return c.backup.Complete(ctx, modelRef, systemPrompt, prompt)
}
