package sessions

import (
	"fmt"

	"github.com/haasonsaas/pocketd/pkg/models"
)

// Bounds for persisted history. Live tool results returned to the current
// turn are never truncated; only the stored copy used to rebuild future
// prompts is.
const (
	// MaxStoredArgLen bounds string-valued tool call arguments.
	MaxStoredArgLen = 500

	// MaxStoredResultLen bounds tool result content.
	MaxStoredResultLen = 2000
)

// truncate cuts s to limit characters (runes, not bytes) so multibyte
// text is never split mid-sequence.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return fmt.Sprintf("%s… [truncated %d chars]", string(runes[:limit]), len(runes)-limit)
}

// truncateForStorage returns a copy of msg with oversized tool arguments
// and tool results cut down to their bounded prefix.
func truncateForStorage(msg models.Message) models.Message {
	if msg.Role == models.RoleTool && len(msg.Content) > MaxStoredResultLen {
		msg.Content = truncate(msg.Content, MaxStoredResultLen)
	}
	if len(msg.ToolCalls) == 0 {
		return msg
	}
	calls := make([]models.ToolCall, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		calls[i] = tc
		if tc.Arguments == nil {
			continue
		}
		args := make(map[string]any, len(tc.Arguments))
		for k, v := range tc.Arguments {
			if s, ok := v.(string); ok && len(s) > MaxStoredArgLen {
				args[k] = truncate(s, MaxStoredArgLen)
			} else {
				args[k] = v
			}
		}
		calls[i].Arguments = args
	}
	msg.ToolCalls = calls
	return msg
}
