// Package toolconfig loads toolbox definitions from YAML and resolves the
// requested subset into transport parameters ready for session construction.
package toolconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/germanamz/toolplex/pkg/tools/mcpclient"
	"github.com/germanamz/toolplex/pkg/tools/namespace"
	"gopkg.in/yaml.v3"
)

// kindAliases maps descriptive transport names onto the MCP transport kinds.
var kindAliases = map[string]mcpclient.Kind{
	"subprocess":        mcpclient.KindStdio,
	"persistent-stream": mcpclient.KindSSE,
	"per-call-stream":   mcpclient.KindStreamable,
}

// ToolboxConfig describes one configured backend.
type ToolboxConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`

	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout float64           `yaml:"timeout"` // Seconds; 0 uses mcpclient.DefaultTimeout.

	Reconnecting   bool     `yaml:"reconnecting"`
	Isolated       bool     `yaml:"isolated"`
	Confirm        []string `yaml:"confirm"`
	ServerPrompt   string   `yaml:"server_prompt"`
	SessionTimeout float64  `yaml:"session_timeout"` // Seconds; 0 uses the transport default.
}

// TransportKind returns the normalized transport kind.
func (t ToolboxConfig) TransportKind() mcpclient.Kind {
	k := strings.ToLower(strings.TrimSpace(t.Kind))
	if alias, ok := kindAliases[k]; ok {
		return alias
	}
	return mcpclient.Kind(k)
}

// Validate checks that the transport kind is supported and its required
// parameters are present.
func (t ToolboxConfig) Validate() error {
	if t.Name == "" {
		return configErr("", fmt.Errorf("%w: name", ErrMissingParameter))
	}

	switch kind := t.TransportKind(); kind {
	case mcpclient.KindStdio:
		if t.Command == "" {
			return missing(t.Name, "command")
		}
	case mcpclient.KindSSE, mcpclient.KindStreamable:
		if t.URL == "" {
			return missing(t.Name, "url")
		}
	default:
		return configErr(t.Name, fmt.Errorf("%w %q", ErrUnsupportedTransport, t.Kind))
	}

	if t.Timeout < 0 {
		return configErr(t.Name, errors.New("timeout must not be negative"))
	}
	if t.SessionTimeout < 0 {
		return configErr(t.Name, errors.New("session_timeout must not be negative"))
	}

	return nil
}

// Catalog is the set of every configured toolbox.
type Catalog struct {
	Toolboxes []ToolboxConfig `yaml:"toolboxes"`
}

// Lookup returns the toolbox with the given name.
func (c *Catalog) Lookup(name string) (ToolboxConfig, bool) {
	for _, tb := range c.Toolboxes {
		if tb.Name == name {
			return tb, true
		}
	}
	return ToolboxConfig{}, false
}

// Names returns the toolbox names in configuration order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Toolboxes))
	for _, tb := range c.Toolboxes {
		names = append(names, tb.Name)
	}
	return names
}

// Merge appends other's toolboxes, failing on a name already present.
func (c *Catalog) Merge(other *Catalog) error {
	for _, tb := range other.Toolboxes {
		if _, dup := c.Lookup(tb.Name); dup {
			return configErr(tb.Name, ErrDuplicateToolbox)
		}
		c.Toolboxes = append(c.Toolboxes, tb)
	}
	return nil
}

// Validate checks every toolbox, name uniqueness, and that no namespace prefix
// is a prefix of another, so every namespaced tool name has exactly one owner.
func (c *Catalog) Validate() error {
	names := make(map[string]struct{}, len(c.Toolboxes))
	prefixes := make(map[string]string, len(c.Toolboxes))

	for _, tb := range c.Toolboxes {
		if err := tb.Validate(); err != nil {
			return err
		}
		if _, dup := names[tb.Name]; dup {
			return configErr(tb.Name, ErrDuplicateToolbox)
		}
		names[tb.Name] = struct{}{}

		prefix := namespace.Prefix(tb.Name)
		for seen, other := range prefixes {
			if strings.HasPrefix(prefix, seen) || strings.HasPrefix(seen, prefix) {
				return configErr(tb.Name, fmt.Errorf("%w: prefix %s overlaps prefix %s of %q", ErrDuplicateToolbox, prefix, seen, other))
			}
		}
		prefixes[prefix] = tb.Name
	}

	return nil
}

// LoadFile reads one YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return nil, fmt.Errorf("toolconfig: load %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("toolconfig: parse: %w", err)
	}
	return &c, nil
}

// LoadDir merges every *.yaml and *.yml file under dir. Dot-files and
// dot-directories are skipped. A toolbox defined twice is an error.
func LoadDir(dir string) (*Catalog, error) {
	merged := &Catalog{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
		default:
			return nil
		}

		c, err := LoadFile(path)
		if err != nil {
			return err
		}
		if err := merged.Merge(c); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return merged, nil
}

// Load reads path as a file or, if it is a directory, with LoadDir.
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("toolconfig: load %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
