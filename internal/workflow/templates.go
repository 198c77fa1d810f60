package workflow

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/vinayprograms/conductor/internal/catalog"
)

// Templates is a versioned template registry. Publishing a template with
// an existing name appends a new version; prior versions stay readable so
// running workflows keep the definition they started with.
type Templates struct {
	byName map[string][]Template
}

// NewTemplates creates a registry seeded with the builtin templates.
func NewTemplates() *Templates {
	t := &Templates{byName: make(map[string][]Template)}
	for _, tmpl := range builtinTemplates() {
		t.Publish(tmpl)
	}
	return t
}

// Publish registers a template and assigns it the next version number.
// The stage list is copied so later edits to the caller's value cannot
// reach a published version.
func (t *Templates) Publish(tmpl Template) Template {
	versions := t.byName[tmpl.Name]
	tmpl.Version = len(versions) + 1
	tmpl.Stages = append([]TemplateStage(nil), tmpl.Stages...)
	t.byName[tmpl.Name] = append(versions, tmpl)
	return tmpl
}

// Get returns the latest version of a named template.
func (t *Templates) Get(name string) (Template, error) {
	versions := t.byName[name]
	if len(versions) == 0 {
		return Template{}, fmt.Errorf("unknown template: %s", name)
	}
	return versions[len(versions)-1], nil
}

// GetVersion returns a specific template version.
func (t *Templates) GetVersion(name string, version int) (Template, error) {
	versions := t.byName[name]
	if version < 1 || version > len(versions) {
		return Template{}, fmt.Errorf("unknown template version: %s v%d", name, version)
	}
	return versions[version-1], nil
}

// Names lists registered template names in sorted order.
func (t *Templates) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile publishes a template parsed from a YAML file.
func (t *Templates) LoadFile(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, err
	}
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return Template{}, fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	if tmpl.Name == "" {
		return Template{}, fmt.Errorf("template %s has no name", path)
	}
	if len(tmpl.Stages) == 0 {
		return Template{}, fmt.Errorf("template %s has no stages", path)
	}
	return t.Publish(tmpl), nil
}

func builtinTemplates() []Template {
	return []Template{
		{
			Name:    "feature",
			Builtin: true,
			Stages: []TemplateStage{
				{
					Name:   "request",
					Type:   catalog.StageRequest,
					RoleID: string(catalog.RoleControl),
					Gate:   StageGate{Type: GateAuto},
				},
				{
					Name:   "design",
					Type:   catalog.StageDesign,
					RoleID: string(catalog.RolePlanner),
					Gate: StageGate{
						Type:   GateHumanApproval,
						Prompt: "Review the design before implementation begins.",
					},
				},
				{
					Name:   "implementation",
					Type:   catalog.StageImplementation,
					RoleID: string(catalog.RoleImplementer),
					Gate:   StageGate{Type: GateChainComplete},
				},
				{
					Name:   "review",
					Type:   catalog.StageReview,
					RoleID: string(catalog.RoleReviewer),
					Gate: StageGate{
						Type:           GateHumanApproval,
						Prompt:         "Approve the review findings to proceed to verification.",
						AgentTriggered: true,
					},
				},
				{
					Name:   "verification",
					Type:   catalog.StageVerification,
					RoleID: string(catalog.RoleVerifier),
					Gate:   StageGate{Type: GateVerificationPass},
				},
			},
		},
		{
			Name:    "hotfix",
			Builtin: true,
			Stages: []TemplateStage{
				{
					Name:   "implementation",
					Type:   catalog.StageImplementation,
					RoleID: string(catalog.RoleImplementer),
					Gate:   StageGate{Type: GateChainComplete},
				},
				{
					Name:   "verification",
					Type:   catalog.StageVerification,
					RoleID: string(catalog.RoleVerifier),
					Gate:   StageGate{Type: GateVerificationPass},
				},
			},
		},
	}
}
