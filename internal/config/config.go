package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models loanline.yml: the field catalog gated requirements may read,
// the value synonym table, and optional webhook targets.
type Config struct {
	Fields struct {
		Catalog map[string]FieldDef            `yaml:"catalog"`
		Aliases map[string]map[string][]string `yaml:"aliases"`
	} `yaml:"fields"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type FieldDef struct {
	Label string `yaml:"label"`
}

type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
}

// FieldLabel returns the display label for a lead column, falling back to a
// title-cased rendering of the column name (package_status -> Package Status).
func (c *Config) FieldLabel(field string) string {
	if def, ok := c.Fields.Catalog[field]; ok && def.Label != "" {
		return def.Label
	}
	parts := strings.Split(field, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// KnownField reports whether a column may be read or written through the
// field API. Only catalog columns are allowed.
func (c *Config) KnownField(field string) bool {
	_, ok := c.Fields.Catalog[field]
	return ok
}

// AliasesFor returns the extra values accepted alongside a declared
// allow-list value for the given field.
func (c *Config) AliasesFor(field, value string) []string {
	byValue, ok := c.Fields.Aliases[field]
	if !ok {
		return nil
	}
	return byValue[value]
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Fields.Catalog) == 0 {
		return fmt.Errorf("config.fields.catalog is required")
	}
	for field, byValue := range c.Fields.Aliases {
		if _, ok := c.Fields.Catalog[field]; !ok {
			return fmt.Errorf("alias for unknown field %s", field)
		}
		for value, aliases := range byValue {
			if value == "" {
				return fmt.Errorf("field %s has alias entry with empty value", field)
			}
			for _, a := range aliases {
				if a == "" {
					return fmt.Errorf("field %s value %s has empty alias", field, value)
				}
			}
		}
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "loanline.yml")
}

// Default returns the built-in Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
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

const defaultTemplate = `fields:
  catalog:
    loan_status:
      label: "Loan Status"
    package_status:
      label: "Package Status"
    appr_date_time:
      label: "Appraisal Date/Time"
    lock_date:
      label: "Lock Date"
    loan_amount:
      label: "Loan Amount"
    closing_date:
      label: "Closing Date"

  aliases:
    loan_status:
      SUB: [SUV]
`
