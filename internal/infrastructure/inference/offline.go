package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentmarket/backend/internal/application/agent"
)

// OfflineCompleter produces canned replies without contacting any
// provider. It is used when no inference endpoint is configured, which
// keeps local development and integration tests hermetic.
type OfflineCompleter struct{}

var _ agent.Completer = (*OfflineCompleter)(nil)

// NewOfflineCompleter creates an offline completer
func NewOfflineCompleter() *OfflineCompleter {
	return &OfflineCompleter{}
}

const offlinePromptPreview = 80

// Complete returns a deterministic canned reply echoing the prompt
func (c *OfflineCompleter) Complete(_ context.Context, modelRef, _, prompt string) (string, error) {
	preview := strings.TrimSpace(prompt)
	if len(preview) > offlinePromptPreview {
		preview = preview[:offlinePromptPreview] + "..."
	}
	return fmt.Sprintf("[offline:%s] %s", modelRef, preview), nil
}
