package replay

import (
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/conductor/internal/provider"
	"github.com/vinayprograms/conductor/internal/session"
)

func sampleSession() *session.Session {
	return &session.Session{
		ID:         "sess-1",
		Role:       "implementer",
		StageType:  "implementation",
		ChainID:    "chain-1",
		Iterations: 2,
		Outcome:    session.OutcomeSuccess,
		TokenUsage: provider.Usage{InputTokens: 120, OutputTokens: 45},
		CreatedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "you are an implementer"},
			{Role: provider.RoleUser, Content: "add a healthcheck endpoint"},
			{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{
				{ID: "tc1", Name: "write_file", Args: map[string]interface{}{"path": "src/health.go"}},
			}},
			{Role: provider.RoleTool, ToolCallID: "tc1", Content: "wrote src/health.go"},
			{Role: provider.RoleAssistant, Content: "done"},
		},
		ToolCalls: []session.ToolCallRecord{
			{Tool: "write_file", Iteration: 1, Allowed: true, Result: "wrote src/health.go"},
		},
	}
}

func TestRender_Transcript(t *testing.T) {
	out := Render(sampleSession(), false)

	for _, want := range []string{"session sess-1", "role=implementer", "write_file", "path=src/health.go", "done", "✓ success"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "you are an implementer") {
		t.Error("system prompt shown without verbose")
	}
}

func TestRender_VerboseShowsSystemPrompt(t *testing.T) {
	out := Render(sampleSession(), true)
	if !strings.Contains(out, "you are an implementer") {
		t.Error("verbose output should include the system prompt")
	}
}

func TestRender_DeniedCalls(t *testing.T) {
	sess := sampleSession()
	sess.ToolCalls = append(sess.ToolCalls, session.ToolCallRecord{
		Tool: "delete_file", Iteration: 2, Allowed: false, DenyReason: "CI config is protected",
	})
	out := Render(sess, false)
	if !strings.Contains(out, "1 denied tool call(s):") {
		t.Errorf("missing denial summary:\n%s", out)
	}
	if !strings.Contains(out, "CI config is protected") {
		t.Error("deny reason not shown")
	}
}

func TestRender_FailureOutcome(t *testing.T) {
	sess := sampleSession()
	sess.Outcome = session.OutcomeFailure
	sess.Error = "rate limited"
	out := Render(sess, false)
	if !strings.Contains(out, "✗ failure: rate limited") {
		t.Errorf("failure line missing:\n%s", out)
	}
}

func TestRender_ClipsLongContent(t *testing.T) {
	sess := sampleSession()
	sess.Messages = []provider.Message{
		{Role: provider.RoleUser, Content: strings.Repeat("x", 500)},
	}
	out := Render(sess, false)
	if strings.Contains(out, strings.Repeat("x", 300)) {
		t.Error("long content not clipped")
	}
	if !strings.Contains(out, "…") {
		t.Error("clipped content should end with ellipsis")
	}
}

func TestSummary(t *testing.T) {
	out := Summary(sampleSession())
	for _, want := range []string{"sess-1", "implementer", "success"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q: %s", want, out)
		}
	}
}
