// Package setup provides the interactive setup wizard for conductor.
package setup

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/vinayprograms/agentkit/credentials"
)

// Provider options
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderGroq      = "groq"
	ProviderMistral   = "mistral"
	ProviderCustom    = "custom"
)

// Config holds the choices gathered by the wizard.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	// Where session/workflow/lock state lives, relative to the workspace.
	StoragePath string

	// Whether to write a starter governance.yaml.
	WriteGovernance bool

	// Credentials
	CredentialMethod string // "file" or "env"
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginBottom(1)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))
)

// Step is one screen of the wizard.
type Step int

const (
	StepWelcome Step = iota
	StepProvider
	StepModel
	StepCustomModel
	StepAPIKey
	StepBaseURL
	StepGovernance
	StepCredentialMethod
	StepConfirm
	StepWriteFiles
	StepComplete
)

// Model is the bubbletea model for the setup wizard.
type Model struct {
	step      Step
	config    Config
	cursor    int
	textInput textinput.Model
	err       error

	filesWritten []string
}

// New creates a new setup model.
func New() Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 50

	return Model{
		step:      StepWelcome,
		textInput: ti,
		config: Config{
			StoragePath:      ".conductor",
			WriteGovernance:  true,
			CredentialMethod: "file",
		},
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Messages
type filesWrittenMsg struct {
	files []string
}

type errMsg struct {
	error error
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case filesWrittenMsg:
		m.filesWritten = msg.files
		m.step = StepComplete
		return m, nil
	case errMsg:
		m.err = msg.error
		m.step = StepComplete
		return m, nil

	case tea.KeyMsg:
		if m.isTextInputStep() {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "enter":
				return m.handleEnter()
			default:
				var cmd tea.Cmd
				m.textInput, cmd = m.textInput.Update(msg)
				return m, cmd
			}
		}

		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.step == StepWelcome || m.step == StepComplete {
				return m, tea.Quit
			}
			if m.step > StepWelcome {
				m.step = m.previousStep()
				m.cursor = 0
			}
			return m, nil

		case "enter":
			return m.handleEnter()

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case "down", "j":
			if m.cursor < m.maxCursorForStep() {
				m.cursor++
			}
			return m, nil
		}
	}

	return m, nil
}

func (m Model) isTextInputStep() bool {
	switch m.step {
	case StepCustomModel, StepAPIKey, StepBaseURL:
		return true
	}
	return false
}

func (m Model) previousStep() Step {
	switch m.step {
	case StepProvider:
		return StepWelcome
	case StepModel, StepCustomModel:
		return StepProvider
	case StepAPIKey:
		if m.needsCustomModelInput() {
			return StepCustomModel
		}
		return StepModel
	case StepBaseURL:
		return StepAPIKey
	case StepGovernance:
		if m.needsBaseURL() {
			return StepBaseURL
		}
		return StepAPIKey
	case StepCredentialMethod:
		return StepGovernance
	case StepConfirm:
		return StepCredentialMethod
	default:
		return StepWelcome
	}
}

func (m Model) maxCursorForStep() int {
	switch m.step {
	case StepProvider:
		return len(providerOptions()) - 1
	case StepModel:
		return len(modelOptions(m.config.Provider)) - 1
	case StepGovernance:
		return 1
	case StepCredentialMethod:
		return 1
	}
	return 0
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.step {
	case StepWelcome:
		m.step = StepProvider
		m.cursor = 0

	case StepProvider:
		m.config.Provider = providerOptions()[m.cursor].name
		if m.needsCustomModelInput() {
			m.textInput.SetValue("")
			m.textInput.EchoMode = textinput.EchoNormal
			m.textInput.Placeholder = "model name"
			m.step = StepCustomModel
		} else {
			m.step = StepModel
		}
		m.cursor = 0

	case StepModel:
		m.config.Model = modelOptions(m.config.Provider)[m.cursor].id
		m.textInput.SetValue("")
		m.textInput.EchoMode = textinput.EchoPassword
		m.textInput.Placeholder = ""
		m.step = StepAPIKey

	case StepCustomModel:
		if m.textInput.Value() == "" {
			return m, nil
		}
		m.config.Model = m.textInput.Value()
		m.textInput.SetValue("")
		m.textInput.EchoMode = textinput.EchoPassword
		m.step = StepAPIKey

	case StepAPIKey:
		m.config.APIKey = m.textInput.Value()
		m.textInput.SetValue("")
		m.textInput.EchoMode = textinput.EchoNormal
		if m.needsBaseURL() {
			m.textInput.Placeholder = "https://"
			m.step = StepBaseURL
		} else {
			m.step = StepGovernance
		}
		m.cursor = 0

	case StepBaseURL:
		m.config.BaseURL = m.textInput.Value()
		m.step = StepGovernance
		m.cursor = 0

	case StepGovernance:
		m.config.WriteGovernance = m.cursor == 0
		m.step = StepCredentialMethod
		m.cursor = 0

	case StepCredentialMethod:
		if m.cursor == 0 {
			m.config.CredentialMethod = "file"
		} else {
			m.config.CredentialMethod = "env"
		}
		m.step = StepConfirm
		m.cursor = 0

	case StepConfirm:
		m.step = StepWriteFiles
		return m, m.writeFiles()

	case StepComplete:
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) needsCustomModelInput() bool {
	return m.config.Provider == ProviderCustom
}

func (m Model) needsBaseURL() bool {
	return m.config.Provider == ProviderCustom
}

type providerOption struct {
	name string
	desc string
}

func providerOptions() []providerOption {
	return []providerOption{
		{ProviderAnthropic, "Claude models"},
		{ProviderOpenAI, "GPT models"},
		{ProviderGoogle, "Gemini models"},
		{ProviderGroq, "fast open-weight inference"},
		{ProviderMistral, "Mistral models"},
		{ProviderCustom, "OpenAI-compatible endpoint"},
	}
}

type modelOption struct {
	name string
	id   string
}

func modelOptions(provider string) []modelOption {
	switch provider {
	case ProviderAnthropic:
		return []modelOption{
			{"Claude Sonnet (recommended)", "claude-sonnet-4-5"},
			{"Claude Opus", "claude-opus-4-1"},
			{"Claude Haiku", "claude-haiku-4-5"},
		}
	case ProviderOpenAI:
		return []modelOption{
			{"GPT-5", "gpt-5"},
			{"GPT-5 Mini", "gpt-5-mini"},
			{"GPT-4o", "gpt-4o"},
		}
	case ProviderGoogle:
		return []modelOption{
			{"Gemini 2.5 Pro", "gemini-2.5-pro"},
			{"Gemini 2.5 Flash", "gemini-2.5-flash"},
		}
	case ProviderGroq:
		return []modelOption{
			{"Llama 4 Maverick", "llama-4-maverick"},
			{"Llama 3.3 70B", "llama-3.3-70b-versatile"},
		}
	case ProviderMistral:
		return []modelOption{
			{"Mistral Large", "mistral-large-latest"},
			{"Codestral", "codestral-latest"},
		}
	}
	return nil
}

func (m Model) View() string {
	switch m.step {
	case StepWelcome:
		return m.viewWelcome()
	case StepProvider:
		return m.viewProvider()
	case StepModel:
		return m.viewModel()
	case StepCustomModel:
		return m.viewCustomModel()
	case StepAPIKey:
		return m.viewAPIKey()
	case StepBaseURL:
		return m.viewBaseURL()
	case StepGovernance:
		return m.viewGovernance()
	case StepCredentialMethod:
		return m.viewCredentialMethod()
	case StepConfirm:
		return m.viewConfirm()
	case StepWriteFiles:
		return normalStyle.Render("Writing files...")
	case StepComplete:
		return m.viewComplete()
	}
	return ""
}

func (m Model) viewWelcome() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Conductor Setup"))
	s.WriteString("\n\n")
	s.WriteString(normalStyle.Render("This wizard writes conductor.toml and a starter governance schema."))
	s.WriteString("\n\n")
	s.WriteString(dimStyle.Render("Press Enter to continue, q to quit"))
	return s.String()
}

func (m Model) viewProvider() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("LLM Provider") + "\n")
	s.WriteString(subtitleStyle.Render("Select the provider sessions run against") + "\n\n")
	s.WriteString(renderList(providerList(), m.cursor))
	s.WriteString("\n" + dimStyle.Render("↑/↓ to move, Enter to select, q to go back"))
	return s.String()
}

func providerList() [][2]string {
	opts := providerOptions()
	out := make([][2]string, len(opts))
	for i, opt := range opts {
		out[i] = [2]string{opt.name, opt.desc}
	}
	return out
}

func (m Model) viewModel() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Model Selection") + "\n\n")
	opts := modelOptions(m.config.Provider)
	items := make([][2]string, len(opts))
	for i, opt := range opts {
		items[i] = [2]string{opt.name, opt.id}
	}
	s.WriteString(renderList(items, m.cursor))
	s.WriteString("\n" + dimStyle.Render("↑/↓ to move, Enter to select, q to go back"))
	return s.String()
}

func (m Model) viewCustomModel() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Model Name") + "\n")
	s.WriteString(subtitleStyle.Render("Enter the model name your endpoint serves") + "\n\n")
	s.WriteString(m.textInput.View() + "\n\n")
	s.WriteString(dimStyle.Render("Enter to continue"))
	return s.String()
}

func (m Model) viewAPIKey() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("API Key") + "\n")
	s.WriteString(subtitleStyle.Render("Enter your API key for "+m.config.Provider) + "\n\n")
	s.WriteString(m.textInput.View() + "\n\n")
	s.WriteString(dimStyle.Render("Leave empty to configure later. Enter to continue"))
	return s.String()
}

func (m Model) viewBaseURL() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Base URL") + "\n")
	s.WriteString(subtitleStyle.Render("Endpoint for the OpenAI-compatible API") + "\n\n")
	s.WriteString(m.textInput.View() + "\n\n")
	s.WriteString(dimStyle.Render("Enter to continue"))
	return s.String()
}

func (m Model) viewGovernance() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Governance Schema") + "\n")
	s.WriteString(subtitleStyle.Render("Write a starter governance.yaml?") + "\n\n")
	s.WriteString(renderList([][2]string{
		{"yes", "protect .github/ and .conductor/, require approval for deletes"},
		{"no", "I will write my own schema"},
	}, m.cursor))
	s.WriteString("\n" + dimStyle.Render("↑/↓ to move, Enter to select"))
	return s.String()
}

func (m Model) viewCredentialMethod() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Credential Storage") + "\n\n")
	s.WriteString(renderList([][2]string{
		{"file", "store the key in credentials.toml"},
		{"env", "read the key from " + defaultEnvVar(m.config.Provider)},
	}, m.cursor))
	s.WriteString("\n" + dimStyle.Render("↑/↓ to move, Enter to select"))
	return s.String()
}

func (m Model) viewConfirm() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Confirm") + "\n\n")
	s.WriteString(dimStyle.Render("provider:   ") + normalStyle.Render(m.config.Provider) + "\n")
	s.WriteString(dimStyle.Render("model:      ") + normalStyle.Render(m.config.Model) + "\n")
	if m.config.BaseURL != "" {
		s.WriteString(dimStyle.Render("base url:   ") + normalStyle.Render(m.config.BaseURL) + "\n")
	}
	s.WriteString(dimStyle.Render("storage:    ") + normalStyle.Render(m.config.StoragePath) + "\n")
	s.WriteString(dimStyle.Render("governance: ") + normalStyle.Render(fmt.Sprintf("%v", m.config.WriteGovernance)) + "\n")
	s.WriteString(dimStyle.Render("credentials:") + normalStyle.Render(" "+m.config.CredentialMethod) + "\n")
	s.WriteString("\n" + dimStyle.Render("Enter to write files, q to go back"))
	return s.String()
}

func (m Model) viewComplete() string {
	var s strings.Builder
	if m.err != nil {
		s.WriteString(errorStyle.Render("Setup failed: "+m.err.Error()) + "\n\n")
		s.WriteString(dimStyle.Render("Press q to exit"))
		return s.String()
	}
	s.WriteString(successStyle.Render("✓ Setup complete") + "\n\n")
	for _, file := range m.filesWritten {
		s.WriteString(dimStyle.Render("  wrote "+file) + "\n")
	}
	s.WriteString("\n" + normalStyle.Render("Next steps:") + "\n")
	s.WriteString(dimStyle.Render("  1. Review governance.yaml rules") + "\n")
	if m.config.CredentialMethod == "env" {
		s.WriteString(dimStyle.Render("  2. Set "+defaultEnvVar(m.config.Provider)) + "\n")
		s.WriteString(dimStyle.Render("  3. Run: conductor run \"your task\"") + "\n")
	} else {
		s.WriteString(dimStyle.Render("  2. Run: conductor run \"your task\"") + "\n")
	}
	s.WriteString("\n" + dimStyle.Render("Press q to exit"))
	return s.String()
}

func renderList(items [][2]string, cursor int) string {
	var s strings.Builder
	for i, item := range items {
		prefix := "  "
		style := normalStyle
		if i == cursor {
			prefix = "> "
			style = selectedStyle
		}
		s.WriteString(prefix + style.Render(item[0]) + " - " + dimStyle.Render(item[1]) + "\n")
	}
	return s.String()
}

func defaultEnvVar(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	case ProviderGroq:
		return "GROQ_API_KEY"
	case ProviderMistral:
		return "MISTRAL_API_KEY"
	default:
		return "API_KEY"
	}
}

func (m Model) writeFiles() tea.Cmd {
	return func() tea.Msg {
		var files []string

		if err := os.WriteFile("conductor.toml", []byte(m.generateConductorTOML()), 0644); err != nil {
			return errMsg{err}
		}
		files = append(files, "conductor.toml")

		if m.config.WriteGovernance {
			if _, err := os.Stat("governance.yaml"); os.IsNotExist(err) {
				if err := os.WriteFile("governance.yaml", []byte(starterGovernanceYAML), 0644); err != nil {
					return errMsg{err}
				}
				files = append(files, "governance.yaml")
			}
		}

		if m.config.CredentialMethod == "file" && m.config.APIKey != "" {
			if err := m.writeCredentials(); err != nil {
				return errMsg{err}
			}
			files = append(files, credentials.DefaultPath())
		}

		return filesWrittenMsg{files}
	}
}

func (m Model) generateConductorTOML() string {
	var sb strings.Builder

	sb.WriteString("[llm]\n")
	sb.WriteString(fmt.Sprintf("provider = %q\n", m.config.Provider))
	sb.WriteString(fmt.Sprintf("model = %q\n", m.config.Model))
	sb.WriteString("max_tokens = 4096\n")
	if m.config.BaseURL != "" {
		sb.WriteString(fmt.Sprintf("base_url = %q\n", m.config.BaseURL))
	}
	if m.config.CredentialMethod == "env" {
		sb.WriteString(fmt.Sprintf("api_key_env = %q\n", defaultEnvVar(m.config.Provider)))
	}
	sb.WriteString("\n[storage]\n")
	sb.WriteString(fmt.Sprintf("path = %q\n", m.config.StoragePath))
	sb.WriteString("\n[governance]\n")
	sb.WriteString("schema_path = \"governance.yaml\"\n")
	sb.WriteString("\n[locks]\n")
	sb.WriteString("ttl = \"24h\"\n")
	sb.WriteString("\n[limits]\n")
	sb.WriteString("max_iterations = 50\n")
	sb.WriteString("max_nesting_depth = 3\n")

	return sb.String()
}

const starterGovernanceYAML = `mutations:
  deny:
    - pattern: ".github/**"
      reason: "CI configuration is protected"
    - pattern: ".conductor/**"
      reason: "conductor state is not agent-editable"
  approve:
    - pattern: "**"
      actions: [delete]
      reason: "deletions need a human"
  allow:
    - pattern: "**"
`

func (m Model) writeCredentials() error {
	creds, _, _ := credentials.Load()
	if creds == nil {
		creds = &credentials.Credentials{}
	}
	creds.SetAPIKey(m.config.Provider, m.config.APIKey)
	return creds.Save()
}

// Run starts the setup wizard.
func Run() error {
	p := tea.NewProgram(New())
	_, err := p.Run()
	return err
}
