package governance

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleSchema = `
mutations:
  deny:
    - pattern: "*.key"
      reason: "key material is off limits"
    - pattern: "vendor/**"
      actions: [modify, delete]
  approve:
    - pattern: "migrations/**"
      reason: "schema changes need a second pair of eyes"
  allow:
    - pattern: "**/*"
`

func TestCheckMutation_DenyWinsOverAllow(t *testing.T) {
	s, err := LoadBytes([]byte(sampleSchema))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	d := s.CheckMutation("secrets.key", ActionModify)
	if d.Policy != PolicyDeny {
		t.Fatalf("expected deny, got %s", d.Policy)
	}
	if d.Reason != "key material is off limits" {
		t.Errorf("expected rule reason, got %q", d.Reason)
	}
	if d.Rule == nil || d.Rule.Pattern != "*.key" {
		t.Error("decision should carry the matching rule")
	}
}

func TestCheckMutation_ApproveBeforeAllow(t *testing.T) {
	s, _ := LoadBytes([]byte(sampleSchema))

	d := s.CheckMutation("migrations/001_init.sql", ActionCreate)
	if d.Policy != PolicyApprove {
		t.Errorf("expected approve, got %s", d.Policy)
	}
}

func TestCheckMutation_AllowFallthrough(t *testing.T) {
	s, _ := LoadBytes([]byte(sampleSchema))

	d := s.CheckMutation("src/main.go", ActionModify)
	if d.Policy != PolicyAllow {
		t.Errorf("expected allow, got %s", d.Policy)
	}
}

func TestCheckMutation_ActionScopedRule(t *testing.T) {
	s, _ := LoadBytes([]byte(sampleSchema))

	// vendor/** is denied for modify/delete but not create.
	if d := s.CheckMutation("vendor/lib.go", ActionModify); d.Policy != PolicyDeny {
		t.Errorf("expected deny for vendor modify, got %s", d.Policy)
	}
	if d := s.CheckMutation("vendor/lib.go", ActionCreate); d.Policy != PolicyAllow {
		t.Errorf("expected allow for vendor create, got %s", d.Policy)
	}
}

func TestCheckMutation_DefaultDeny(t *testing.T) {
	s, err := LoadBytes([]byte("mutations:\n  allow:\n    - pattern: \"docs/**\"\n"))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	d := s.CheckMutation("src/main.go", ActionModify)
	if d.Policy != PolicyDeny {
		t.Errorf("unmatched mutation should be denied, got %s", d.Policy)
	}
	if d.Reason == "" {
		t.Error("default deny should explain itself")
	}
}

func TestCheckMutation_EmptySchemaDeniesEverything(t *testing.T) {
	s := &Schema{}
	if d := s.CheckMutation("anything", ActionCreate); d.Policy != PolicyDeny {
		t.Errorf("empty schema must deny, got %s", d.Policy)
	}
}

func TestCheckMutationForRole(t *testing.T) {
	schema := `
mutations:
  allow:
    - pattern: "**/*"
roles:
  implementer:
    deny:
      - pattern: "*.key"
    allow:
      - pattern: "src/**"
`
	s, err := LoadBytes([]byte(schema))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if d := s.CheckMutationForRole("src/main.go", ActionModify, "implementer"); d.Policy != PolicyAllow {
		t.Errorf("implementer should write src/, got %s", d.Policy)
	}
	if d := s.CheckMutationForRole("secrets.key", ActionModify, "implementer"); d.Policy != PolicyDeny {
		t.Errorf("implementer must not touch keys, got %s", d.Policy)
	}
	// Out of the role's allow scope, even though the global schema allows it.
	if d := s.CheckMutationForRole("docs/readme.md", ActionModify, "implementer"); d.Policy != PolicyDeny {
		t.Errorf("role scoping must not escalate to the global schema, got %s", d.Policy)
	}
	// Unknown role: denied, not escalated.
	if d := s.CheckMutationForRole("src/main.go", ActionModify, "reviewer"); d.Policy != PolicyDeny {
		t.Errorf("role without an entry must be denied, got %s", d.Policy)
	}
}

func TestCheckMutationForRole_NoRolesSection(t *testing.T) {
	s, _ := LoadBytes([]byte(sampleSchema))
	// Backward compatibility: no roles section at all degrades to global.
	if d := s.CheckMutationForRole("src/main.go", ActionModify, "anyone"); d.Policy != PolicyAllow {
		t.Errorf("missing roles section should fall back to global schema, got %s", d.Policy)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing schema file should not error: %v", err)
	}
	if d := s.CheckMutation("src/main.go", ActionModify); d.Policy != PolicyDeny {
		t.Error("missing schema should deny everything")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governance.yaml")
	if err := os.WriteFile(path, []byte(sampleSchema), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if d := s.CheckMutation("secrets.key", ActionDelete); d.Policy != PolicyDeny {
		t.Error("loaded schema should deny key deletion")
	}
}

func TestLoadBytes_InvalidYAML(t *testing.T) {
	if _, err := LoadBytes([]byte("mutations: [")); err == nil {
		t.Error("malformed YAML should fail to load")
	}
}
