package jitter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/swerdloj/jitter/lexer"
)

// Config is a project file describing a compilation: the sources to
// compile, pre-seeded token rewrites, transform libraries, and output
// options. It is conventionally named jitter.yaml.
//
//	sources:
//	  - src/main.jitter
//	  - src/lib.jitter
//	rewrites:
//	  - pattern: PI
//	    replacement: "3.14159f64"
//	extensions:
//	  - path: ./transforms.so
//	    inputs: [debug]
//	output: out.clif
//	clif: true
type Config struct {
	Sources []string `yaml:"sources"`

	Rewrites []ConfigRewrite `yaml:"rewrites"`

	Extensions []ConfigExtension `yaml:"extensions"`

	// Output receives the textual IR listing when set.
	Output string `yaml:"output"`

	// CLIF prints each function's IR as it is generated.
	CLIF bool `yaml:"clif"`
}

// ConfigRewrite is one token rewrite rule.
type ConfigRewrite struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// ConfigExtension names a transform library.
type ConfigExtension struct {
	Path   string   `yaml:"path"`
	Inputs []string `yaml:"inputs"`
}

// LoadConfig reads and decodes a project file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a project file from bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("config names no sources")
	}
	return &cfg, nil
}

// Callbacks converts the config's rewrites to lexer callbacks.
func (c *Config) Callbacks() []lexer.Callback {
	callbacks := make([]lexer.Callback, len(c.Rewrites))
	for i, r := range c.Rewrites {
		callbacks[i] = lexer.Callback{Pattern: r.Pattern, Replacement: r.Replacement}
	}
	return callbacks
}

// ExtensionConfigs converts the config's extensions.
func (c *Config) ExtensionConfigs() []ExtensionConfig {
	configs := make([]ExtensionConfig, len(c.Extensions))
	for i, e := range c.Extensions {
		configs[i] = ExtensionConfig{Path: e.Path, Inputs: e.Inputs}
	}
	return configs
}
