package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/chunkr/chunkr/engine/core"
)

const envPrefix = "CHUNKR_"

// Load builds the configuration from defaults, an optional YAML file, and
// CHUNKR_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(yamlFileProvider{path: path}, nil); err != nil {
			return nil, fmt.Errorf("config: load file %q: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key string, value string) (string, any) {
			return transformEnvKey(strings.TrimPrefix(key, envPrefix)), splitListValue(value)
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}
	return unmarshalAndValidate(k)
}

// yamlFileProvider adapts a YAML file to a koanf provider using goccy.
type yamlFileProvider struct {
	path string
}

func (p yamlFileProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("config: yaml provider does not support raw bytes")
}

func (p yamlFileProvider) Read() (map[string]any, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return out, nil
}

// transformEnvKey converts CHUNKR_PROCESSING_MAX_FILE_SIZE_MB to
// processing.max_file_size_mb: the first segment is the section, the rest is
// the field name.
func transformEnvKey(s string) string {
	s = strings.ToLower(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' })
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + strings.Join(parts[1:], "_")
}

func splitListValue(value string) any {
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return value
}

func unmarshalAndValidate(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, core.NewError(err, core.CodeConfigInvalid, "config: unmarshal", nil)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, core.NewError(err, core.CodeConfigInvalid, "config: validation failed", nil)
	}
	if err := cfg.validateSemantics(); err != nil {
		return nil, core.NewError(err, core.CodeConfigInvalid, "config: semantic validation failed", nil)
	}
	normalizeFormats(&cfg)
	return &cfg, nil
}

func normalizeFormats(cfg *Config) {
	for i, ext := range cfg.Processing.SupportedFormats {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Processing.SupportedFormats[i] = ext
	}
}
