package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

// Use a private type for context keys to avoid collisions
type serviceContextKey string

const (
	ctxKeyUserID serviceContextKey = "user_id"
)

// ContextWithUser injects the user ID into the context
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// GetUserFromContext retrieves the user ID from the context
func GetUserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyUserID).(string)
	return id, ok
}

// Limits to prevent token overflow when serializing state into prompts.
const (
	maxTableRows         = 50
	maxMessageChars      = 4000
	maxHistoryMessages   = 3
	minSubstantiveLength = 10
)

// SerializeProcess renders the process as a compact table the model can
// parse and reference. Zero and missing values render as "-". Output is
// capped at maxTableRows rows.
func SerializeProcess(process *domain.ProcessData) string {
	if process == nil || len(process.Steps) == 0 {
		return ""
	}

	var lines []string
	if process.Name != "" {
		lines = append(lines, "Process: "+process.Name)
	}
	lines = append(lines,
		"| # | Step | Time (hrs) | Cost ($) | Error % | Resources | Depends On |",
		"|---|------|------------|----------|---------|-----------|------------|",
	)

	show := process.Steps
	if len(show) > maxTableRows {
		show = show[:maxTableRows]
	}
	for i := range show {
		s := &show[i]
		timeStr := "-"
		if s.AverageTimeHours != 0 {
			timeStr = fmt.Sprintf("%.1f", s.AverageTimeHours)
		}
		costStr := "-"
		if s.CostPerInstance != 0 {
			costStr = fmt.Sprintf("%.2f", s.CostPerInstance)
		}
		errStr := "-"
		if s.ErrorRatePct != 0 {
			errStr = fmt.Sprintf("%.1f", s.ErrorRatePct)
		}
		resStr := "-"
		if s.ResourcesNeeded != 0 {
			resStr = fmt.Sprintf("%d", s.ResourcesNeeded)
		}
		depsStr := "-"
		if len(s.DependsOn) > 0 {
			depsStr = strings.Join(s.DependsOn, ", ")
		}
		lines = append(lines, fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s |",
			i+1, s.StepName, timeStr, costStr, errStr, resStr, depsStr))
	}

	if len(process.Steps) > maxTableRows {
		lines = append(lines, fmt.Sprintf("| ... | (%d more steps) | | | | | |", len(process.Steps)-maxTableRows))
	}

	lines = append(lines, "",
		fmt.Sprintf("Total time: %.1f hours", process.TotalTimeHours()),
		fmt.Sprintf("Total cost: $%.2f", process.TotalCost()))

	return strings.Join(lines, "\n")
}

// filterSubstantiveMessages keeps user messages long enough to carry intent.
func filterSubstantiveMessages(messages []domain.Message) []domain.Message {
	var substantive []domain.Message
	for _, msg := range messages {
		if msg.Role != domain.RoleUser {
			continue
		}
		if len(strings.TrimSpace(msg.Content)) < minSubstantiveLength {
			continue
		}
		substantive = append(substantive, msg)
	}
	return substantive
}

// BuildConversationContext combines the current process table with the
// most recent substantive user messages (excluding the current input,
// which arrives separately) into a prompt context block.
func BuildConversationContext(process *domain.ProcessData, messages []domain.Message) string {
	var parts []string

	if table := SerializeProcess(process); table != "" {
		parts = append(parts, "## Current Process Data\n", table, "")
	}

	substantive := filterSubstantiveMessages(messages)
	if len(substantive) > 1 {
		start := len(substantive) - 1 - maxHistoryMessages
		if start < 0 {
			start = 0
		}
		recent := substantive[start : len(substantive)-1]
		if len(recent) > 0 {
			parts = append(parts, "## Recent Conversation\n")
			for _, msg := range recent {
				content := msg.Content
				if len(content) > maxMessageChars {
					content = content[:maxMessageChars] + "..."
				}
				parts = append(parts, "User: "+content)
			}
			parts = append(parts, "")
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n")
}

var editVerbs = []string{
	"change", "update", "modify", "set", "fix", "correct", "adjust",
	"remove", "delete", "add", "increase", "decrease", "reduce",
}

var stepRefs = []string{
	"step ", "the ", "first ", "second ", "third ", "last ", "final ",
}

// IsLikelyEditRequest reports whether the input reads like an edit to the
// existing process rather than new data. Requires an edit verb plus either
// a positional step reference or an existing step name.
func IsLikelyEditRequest(input string, process *domain.ProcessData) bool {
	if process == nil || len(process.Steps) == 0 {
		return false
	}
	low := strings.ToLower(input)

	hasVerb := false
	for _, verb := range editVerbs {
		if strings.Contains(low, verb) {
			hasVerb = true
			break
		}
	}
	if !hasVerb {
		return false
	}

	for _, ref := range stepRefs {
		if strings.Contains(low, ref) {
			return true
		}
	}
	for i := range process.Steps {
		if strings.Contains(low, strings.ToLower(process.Steps[i].StepName)) {
			return true
		}
	}
	return false
}
