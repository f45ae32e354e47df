// Package config loads the key-timer daemon configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/key-timer/internal/gpio"
	"github.com/sweeney/key-timer/internal/keys"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/key-timer/config.yaml"

// ErrInvalid is returned when a config parses but fails validation.
var ErrInvalid = errors.New("config: invalid")

// KeyConfig describes one key. LED and Mirror are optional outputs; both are
// driven with the same feedback signal.
type KeyConfig struct {
	Name   string `yaml:"name"`
	Pin    int    `yaml:"pin"`
	LED    *int   `yaml:"led"`
	Mirror *int   `yaml:"mirror"`
}

// Outputs returns the wired output pins of the key, LED first.
func (k KeyConfig) Outputs() []int {
	var out []int
	for _, p := range []*int{k.LED, k.Mirror} {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// OptionalPin returns a pointer to n, for optional pins in literals.
func OptionalPin(n int) *int { return &n }

type GPIOConfig struct {
	Chip string `yaml:"chip"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"` // empty derives one from the boot id
}

type HTTPConfig struct {
	Listen string `yaml:"listen"` // empty disables the status server
}

type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type Config struct {
	Keys      []KeyConfig   `yaml:"keys"`
	GPIO      GPIOConfig    `yaml:"gpio"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	HTTP      HTTPConfig    `yaml:"http"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	MDNS      MDNSConfig    `yaml:"mdns"`
	Log       LogConfig     `yaml:"log"`
}

// Default returns a fresh copy of the built-in configuration.
func Default() Config {
	return Config{
		Keys: []KeyConfig{
			{Name: "TEC1", Pin: 17, LED: OptionalPin(5)},
			{Name: "TEC2", Pin: 27, LED: OptionalPin(6)},
			{Name: "TEC3", Pin: 22, LED: OptionalPin(13)},
			{Name: "TEC4", Pin: 23, LED: OptionalPin(19)},
		},
		GPIO:      GPIOConfig{Chip: gpio.DefaultChip},
		MQTT:      MQTTConfig{Broker: "tcp://192.168.1.200:1883"},
		HTTP:      HTTPConfig{Listen: ":80"},
		Heartbeat: 15 * time.Minute,
		MDNS:      MDNSConfig{Instance: "key-timer"},
		Log:       LogConfig{Level: "info"},
	}
}

// Validate checks key count, pin numbers and names.
func (c *Config) Validate() error {
	if len(c.Keys) == 0 || len(c.Keys) > keys.MaxKeys {
		return fmt.Errorf("%w: %d keys (want 1..%d)", ErrInvalid, len(c.Keys), keys.MaxKeys)
	}

	pins := make(map[int]string)
	names := make(map[string]bool)
	claim := func(pin int, owner string) error {
		if pin < 0 {
			return fmt.Errorf("%w: %s: invalid pin number %d", ErrInvalid, owner, pin)
		}
		if prev, ok := pins[pin]; ok {
			return fmt.Errorf("%w: %s: pin %d already used by %s", ErrInvalid, owner, pin, prev)
		}
		pins[pin] = owner
		return nil
	}

	for i, k := range c.Keys {
		if k.Name == "" {
			return fmt.Errorf("%w: key %d has no name", ErrInvalid, i)
		}
		if names[k.Name] {
			return fmt.Errorf("%w: duplicate key name %q", ErrInvalid, k.Name)
		}
		names[k.Name] = true

		if err := claim(k.Pin, k.Name+" input"); err != nil {
			return err
		}
		if k.LED != nil {
			if err := claim(*k.LED, k.Name+" led"); err != nil {
				return err
			}
		}
		if k.Mirror != nil {
			if err := claim(*k.Mirror, k.Name+" mirror"); err != nil {
				return err
			}
		}
	}

	if c.Heartbeat < 0 {
		return fmt.Errorf("%w: negative heartbeat %v", ErrInvalid, c.Heartbeat)
	}
	if c.GPIO.Chip == "" {
		return fmt.Errorf("%w: empty gpio chip", ErrInvalid)
	}
	return nil
}

// Names returns the configured key names in index order.
func (c *Config) Names() []string {
	out := make([]string, len(c.Keys))
	for i, k := range c.Keys {
		out[i] = k.Name
	}
	return out
}

// Pins returns the input pin and the output pins of every key in index order.
func (c *Config) Pins() (inputs []int, outputs [][]int) {
	for _, k := range c.Keys {
		inputs = append(inputs, k.Pin)
		outputs = append(outputs, k.Outputs())
	}
	return inputs, outputs
}

// LoadFromBytes overlays data onto the defaults and validates the result.
// Empty data yields the defaults. Unknown fields are rejected.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses filename.
func LoadFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return LoadFromBytes(data)
}

// Load is LoadFile, except that a missing file yields the defaults.
// The boolean reports whether the file was found.
func Load(filename string) (*Config, bool, error) {
	cfg, err := LoadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = LoadFromBytes(nil)
		return cfg, false, err
	}
	if err != nil {
		return nil, true, err
	}
	return cfg, true, nil
}
