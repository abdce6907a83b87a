package wireghost

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the small, optional set of knobs a Dispatch can be built
// from. Embedding a Dispatch directly in a larger proxy never needs
// this — Config only exists for the common case of loading a handful
// of startup values from a file.
type Config struct {
	// InitialProtocolVersion is passed to SetProtocolVersion immediately
	// after construction if non-zero.
	InitialProtocolVersion int `yaml:"initialProtocolVersion"`
	// DefaultCodecBackend names a backend ("protobuf", "msgpack",
	// "thrift", "gob", or "json"). Nothing in this module reads it:
	// codec.Registry.RegisterMessage always takes an explicit Backend.
	DefaultCodecBackend string `yaml:"defaultCodecBackend"`
	// EnableTransformChain toggles whether Dispatch runs frames through
	// the Frame Transform Chain at all.
	EnableTransformChain bool `yaml:"enableTransformChain"`
	// LogLevel is one of zerolog's level names ("debug", "info",
	// "warn", "error"). Nothing in this module reads it; the default
	// logger's level is not set from it.
	LogLevel string `yaml:"logLevel"`
}

// DefaultConfig returns the zero-value Config's equivalent in terms of
// observable defaults (no protocol version pre-set, transform chain
// disabled), with DefaultCodecBackend "msgpack" and LogLevel "info".
func DefaultConfig() Config {
	return Config{DefaultCodecBackend: "msgpack", LogLevel: "info"}
}

// LoadConfig reads and parses a YAML config file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "wireghost: read config %q", path)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "wireghost: parse config %q", path)
	}
	return cfg, nil
}
