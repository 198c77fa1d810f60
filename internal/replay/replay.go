package replay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vinayprograms/conductor/internal/provider"
	"github.com/vinayprograms/conductor/internal/session"
)

const previewLimit = 200

// Render formats a session transcript for the terminal. Verbose mode
// shows system prompts and full message content instead of previews.
func Render(sess *session.Session, verbose bool) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("session "+sess.ID) + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("role=%s stage=%s depth=%d", sess.Role, orDash(sess.StageType), sess.NestingDepth)) + "\n")
	if sess.ChainID != "" || sess.WorkflowID != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("chain=%s workflow=%s", orDash(sess.ChainID), orDash(sess.WorkflowID))) + "\n")
	}
	b.WriteString(renderOutcome(sess) + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d iterations, %d in / %d out tokens, started %s",
		sess.Iterations, sess.TokenUsage.InputTokens, sess.TokenUsage.OutputTokens,
		sess.CreatedAt.Format("2006-01-02 15:04:05"))) + "\n")
	b.WriteString(divider + "\n")

	for _, msg := range sess.Messages {
		switch msg.Role {
		case provider.RoleSystem:
			if verbose {
				b.WriteString(dimStyle.Render("[system] "+clip(msg.Content, verbose)) + "\n")
			}
		case provider.RoleUser:
			b.WriteString(userStyle.Render("» "+clip(msg.Content, verbose)) + "\n")
		case provider.RoleAssistant:
			if msg.Content != "" {
				b.WriteString(assistantStyle.Render(clip(msg.Content, verbose)) + "\n")
			}
			for _, tc := range msg.ToolCalls {
				b.WriteString(toolStyle.Render("  → "+tc.Name) + dimStyle.Render(" "+renderArgs(tc.Args, verbose)) + "\n")
			}
		case provider.RoleTool:
			line := "  ← " + clip(msg.Content, verbose)
			switch {
			case strings.HasPrefix(msg.Content, "denied:"):
				b.WriteString(errorStyle.Render(line) + "\n")
			case strings.HasPrefix(msg.Content, "error:"):
				b.WriteString(warnStyle.Render(line) + "\n")
			default:
				b.WriteString(dimStyle.Render(line) + "\n")
			}
		}
	}

	if denied := deniedCalls(sess); len(denied) > 0 {
		b.WriteString(divider + "\n")
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d denied tool call(s):", len(denied))) + "\n")
		for _, rec := range denied {
			b.WriteString(errorStyle.Render(fmt.Sprintf("  %s (iteration %d): %s", rec.Tool, rec.Iteration, rec.DenyReason)) + "\n")
		}
	}
	return b.String()
}

// Summary formats a one-line session overview for list output.
func Summary(sess *session.Session) string {
	outcome := sess.Outcome
	if outcome == "" {
		outcome = "running"
	}
	line := fmt.Sprintf("%s  %-11s  %-11s  %2d iter  %s",
		sess.ID, sess.Role, outcome, sess.Iterations, sess.CreatedAt.Format("2006-01-02 15:04"))
	switch sess.Outcome {
	case session.OutcomeSuccess:
		return successStyle.Render(line)
	case session.OutcomeFailure:
		return errorStyle.Render(line)
	case session.OutcomeInterrupted:
		return warnStyle.Render(line)
	default:
		return dimStyle.Render(line)
	}
}

func renderOutcome(sess *session.Session) string {
	switch sess.Outcome {
	case session.OutcomeSuccess:
		return successStyle.Render("✓ " + sess.Outcome)
	case session.OutcomeFailure:
		text := "✗ " + sess.Outcome
		if sess.Error != "" {
			text += ": " + sess.Error
		}
		return errorStyle.Render(text)
	case session.OutcomeInterrupted:
		return warnStyle.Render("⚠ " + sess.Outcome + " (" + sess.StopReason + ")")
	default:
		return dimStyle.Render("… in progress")
	}
}

func deniedCalls(sess *session.Session) []session.ToolCallRecord {
	var out []session.ToolCallRecord
	for _, rec := range sess.ToolCalls {
		if !rec.Allowed {
			out = append(out, rec)
		}
	}
	return out
}

func renderArgs(args map[string]interface{}, verbose bool) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		text := fmt.Sprintf("%v", args[key])
		if !verbose && len(text) > 40 {
			text = text[:40] + "…"
		}
		parts = append(parts, key+"="+text)
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func clip(s string, verbose bool) string {
	s = strings.TrimSpace(s)
	if verbose || len(s) <= previewLimit {
		return s
	}
	return s[:previewLimit] + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
