package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"jml/internal/domain"
)

// Config models jml.yml.
type Config struct {
	Org struct {
		Name   string `yaml:"name"`
		Domain string `yaml:"domain"`
	} `yaml:"org"`
	Directory struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
	} `yaml:"directory"`
	Tickets struct {
		BaseURL        string `yaml:"base_url"`
		Token          string `yaml:"token"`
		ClosedStatusID int    `yaml:"closed_status_id"`
	} `yaml:"tickets"`
	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notify"`
	Run struct {
		ConfirmationPhrase string   `yaml:"confirmation_phrase"`
		PhaseTimeout       Duration `yaml:"phase_timeout"`
		PacingDelay        Duration `yaml:"pacing_delay"`
	} `yaml:"run"`
	Phases []domain.PhaseSpec `yaml:"phases"`
}

// Duration parses yaml values like "2m" or "3s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with jml config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.Domain == "" {
		return fmt.Errorf("config.org.domain is required")
	}
	if len(c.Phases) == 0 {
		return fmt.Errorf("config.phases is required")
	}
	seenName := map[string]bool{}
	seenOrder := map[int]bool{}
	for _, p := range c.Phases {
		if p.Name == "" {
			return fmt.Errorf("config.phases contains empty phase name")
		}
		if seenName[p.Name] {
			return fmt.Errorf("duplicate phase %s", p.Name)
		}
		seenName[p.Name] = true
		if seenOrder[p.Order] {
			return fmt.Errorf("phase %s reuses order %d", p.Name, p.Order)
		}
		seenOrder[p.Order] = true
	}
	if c.Run.ConfirmationPhrase == "" {
		return fmt.Errorf("config.run.confirmation_phrase is required")
	}
	if c.Run.PhaseTimeout < 0 {
		return fmt.Errorf("config.run.phase_timeout must not be negative")
	}
	if c.Run.PacingDelay < 0 {
		return fmt.Errorf("config.run.pacing_delay must not be negative")
	}
	return nil
}

// PhaseOrder returns the configured phase names sorted by order.
func (c *Config) PhaseOrder() []string {
	phases := append([]domain.PhaseSpec(nil), c.Phases...)
	sort.Slice(phases, func(i, j int) bool { return phases[i].Order < phases[j].Order })
	names := make([]string, 0, len(phases))
	for _, p := range phases {
		names = append(names, p.Name)
	}
	return names
}

// PhaseSpec returns the spec for a configured phase name.
func (c *Config) PhaseSpec(name string) (domain.PhaseSpec, bool) {
	for _, p := range c.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return domain.PhaseSpec{}, false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "jml.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgDomain string) string {
	return fmt.Sprintf(defaultTemplate, orgDomain)
}

// Default returns the default Config struct for an org domain.
func Default(orgDomain string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, orgDomain))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `org:
  name: ""
  domain: %s

directory:
  base_url: ""
  token: ""

tickets:
  base_url: ""
  token: ""
  closed_status_id: 0

notify:
  webhook_url: ""

run:
  confirmation_phrase: TERMINATE
  phase_timeout: 2m
  pacing_delay: 3s

phases:
  - name: device-lock
    order: 10
  - name: identity
    order: 20
  - name: messaging
    order: 30
  - name: workspace
    order: 40
    transfers_data: true
  - name: conferencing
    order: 50
  - name: analytics
    order: 60
    group: analytics-users
  - name: diagramming
    order: 70
    group: diagramming-users
  - name: creative
    order: 80
    group: creative-users
  - name: door-access
    order: 90
  - name: integration
    order: 100
`
