package weave

import (
	"errors"
	"io"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Config is the file form of serializer options. Types are named by their
// canonical names and must be registered in the process before Options is
// called.
type Config struct {
	RootName      string               `yaml:"root_name"`
	RefTracking   bool                 `yaml:"ref_tracking"`
	MaxDepth      *int                 `yaml:"max_depth"`
	MaxLength     *int                 `yaml:"max_length"`
	Indent        *string              `yaml:"indent"`
	KnownTypes    []KnownTypeConfig    `yaml:"known_types"`
	FieldNames    []FieldNameConfig    `yaml:"field_names"`
	Substitutions []SubstitutionConfig `yaml:"substitutions"`
}

// KnownTypeConfig binds a type to a document name.
type KnownTypeConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// FieldNameConfig renames a struct field.
type FieldNameConfig struct {
	Type  string `yaml:"type"`
	Field string `yaml:"field"`
	Name  string `yaml:"name"`
}

// SubstitutionConfig names the concrete type read for an interface.
type SubstitutionConfig struct {
	Interface string `yaml:"interface"`
	Concrete  string `yaml:"concrete"`
}

// LoadConfig parses a YAML configuration. Unknown keys are rejected.
func LoadConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, wrapSerializationError(ErrMalformed, "", err)
	}
	return &cfg, nil
}

// Options converts the configuration to serializer options.
func (c *Config) Options() ([]Option, error) {
	var opts []Option
	if c.RootName != "" {
		opts = append(opts, WithRootName(c.RootName))
	}
	if c.RefTracking {
		opts = append(opts, WithRefTracking(true))
	}
	if c.MaxDepth != nil {
		opts = append(opts, WithMaxDepth(*c.MaxDepth))
	}
	if c.MaxLength != nil {
		opts = append(opts, WithMaxLength(*c.MaxLength))
	}
	if c.Indent != nil {
		opts = append(opts, WithIndent(*c.Indent))
	}

	for _, k := range c.KnownTypes {
		t, err := resolveConfigType(k.Type)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithKnownType(k.Name, t))
	}
	for _, f := range c.FieldNames {
		t, err := resolveConfigType(f.Type)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithFieldName(t, f.Field, f.Name))
	}
	for _, s := range c.Substitutions {
		iface, err := resolveConfigType(s.Interface)
		if err != nil {
			return nil, err
		}
		concrete, err := resolveConfigType(s.Concrete)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithSubstitution(iface, concrete))
	}
	return opts, nil
}

func resolveConfigType(name string) (reflect.Type, error) {
	t, ok := ResolveTypeName(remapLegacyName(name))
	if !ok {
		return nil, newSerializationError(ErrUnknownType, "", "%q", name)
	}
	return t, nil
}
