package aigateway

import (
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
)

const DefaultHistoryLimit = 10

// TrimHistory converts the tail of a transcript into model history. Scripted lines (welcome,
// prompts, notices) and system messages never reach the model.
func TrimHistory(msgs []types.ChatMessage, limit int) []types.ChatTurn {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	kept := make([]types.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == types.RoleSystem || m.Kind != "" || m.Text == "" {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	out := make([]types.ChatTurn, 0, len(kept))
	for _, m := range kept {
		role := "user"
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		out = append(out, types.ChatTurn{Role: role, Parts: []types.ChatPart{{Text: m.Text}}})
	}
	return out
}
