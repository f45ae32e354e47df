package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadFromBytes(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"TEC1", "TEC2", "TEC3", "TEC4"}, cfg.Names())
	inputs, outputs := cfg.Pins()
	assert.Equal(t, []int{17, 27, 22, 23}, inputs)
	assert.Equal(t, [][]int{{5}, {6}, {13}, {19}}, outputs)
	assert.Equal(t, "gpiochip0", cfg.GPIO.Chip)
	assert.Equal(t, "tcp://192.168.1.200:1883", cfg.MQTT.Broker)
	assert.Equal(t, ":80", cfg.HTTP.Listen)
	assert.Equal(t, 15*time.Minute, cfg.Heartbeat)
	assert.False(t, cfg.MDNS.Enabled)
}

func TestDefaultIsACopy(t *testing.T) {
	a := Default()
	a.Keys[0].Name = "changed"
	assert.Equal(t, "TEC1", Default().Keys[0].Name)
}

func TestLoadFromBytesOverlay(t *testing.T) {
	data := []byte(`
keys:
  - {name: UP, pin: 4, led: 20}
  - {name: DOWN, pin: 5, led: 21}
mqtt:
  broker: tcp://broker.local:1883
heartbeat: 30s
mdns:
  enabled: true
log:
  level: debug
  json: true
`)
	cfg, err := LoadFromBytes(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"UP", "DOWN"}, cfg.Names())
	assert.Equal(t, "tcp://broker.local:1883", cfg.MQTT.Broker)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat)
	assert.True(t, cfg.MDNS.Enabled)
	assert.Equal(t, "key-timer", cfg.MDNS.Instance)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	// untouched sections keep their defaults
	assert.Equal(t, ":80", cfg.HTTP.Listen)
	assert.Equal(t, "gpiochip0", cfg.GPIO.Chip)
}

func TestLoadFromBytesCommentsOnly(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("# nothing here\n"))
	require.NoError(t, err)
	assert.Len(t, cfg.Keys, 4)
}

func TestLoadFromBytesRejectsUnknownField(t *testing.T) {
	_, err := LoadFromBytes([]byte("debounce: 20ms\n"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestLoadFromBytesMalformed(t *testing.T) {
	_, err := LoadFromBytes([]byte("keys: [\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no keys", func(c *Config) { c.Keys = nil }},
		{"too many keys", func(c *Config) {
			c.Keys = nil
			for i := 0; i < 65; i++ {
				c.Keys = append(c.Keys, KeyConfig{Name: string(rune('A'+i%26)) + string(rune('a'+i/26)), Pin: 2 * i, LED: OptionalPin(2*i + 1)})
			}
		}},
		{"negative pin", func(c *Config) { c.Keys[0].Pin = -1 }},
		{"negative led", func(c *Config) { c.Keys[2].LED = OptionalPin(-3) }},
		{"negative mirror", func(c *Config) { c.Keys[2].Mirror = OptionalPin(-1) }},
		{"mirror shares led pin", func(c *Config) { c.Keys[1].Mirror = OptionalPin(*c.Keys[1].LED) }},
		{"duplicate input pin", func(c *Config) { c.Keys[1].Pin = c.Keys[0].Pin }},
		{"led shares input pin", func(c *Config) { c.Keys[3].LED = OptionalPin(c.Keys[0].Pin) }},
		{"empty name", func(c *Config) { c.Keys[1].Name = "" }},
		{"duplicate name", func(c *Config) { c.Keys[2].Name = "TEC1" }},
		{"negative heartbeat", func(c *Config) { c.Heartbeat = -time.Second }},
		{"empty chip", func(c *Config) { c.GPIO.Chip = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestValidateAcceptsZeroHeartbeatAndPin(t *testing.T) {
	cfg := Default()
	cfg.Heartbeat = 0
	cfg.Keys[0].Pin = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidateMaxKeys(t *testing.T) {
	cfg := Default()
	cfg.Keys = nil
	for i := 0; i < 64; i++ {
		cfg.Keys = append(cfg.Keys, KeyConfig{Name: "K" + string(rune('0'+i/10)) + string(rune('0'+i%10)), Pin: 2 * i, LED: OptionalPin(2*i + 1)})
	}
	assert.NoError(t, cfg.Validate())
}

func TestKeysWithoutLEDs(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
keys:
  - {name: A, pin: 4}
  - {name: B, pin: 5}
`))
	require.NoError(t, err)

	inputs, outputs := cfg.Pins()
	assert.Equal(t, []int{4, 5}, inputs)
	assert.Equal(t, [][]int{nil, nil}, outputs)
	assert.Nil(t, cfg.Keys[0].LED)
	assert.Nil(t, cfg.Keys[1].Mirror)
}

func TestKeyWithMirrorOutput(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
keys:
  - {name: A, pin: 4, led: 20, mirror: 21}
  - {name: B, pin: 5, mirror: 0}
`))
	require.NoError(t, err)

	_, outputs := cfg.Pins()
	assert.Equal(t, [][]int{{20, 21}, {0}}, outputs)
	assert.Equal(t, OptionalPin(20), cfg.Keys[0].LED)
	assert.Equal(t, OptionalPin(21), cfg.Keys[0].Mirror)
	assert.Nil(t, cfg.Keys[1].LED)
	assert.Equal(t, OptionalPin(0), cfg.Keys[1].Mirror)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, found, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Len(t, cfg.Keys, 4)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  listen: \":8080\"\n"), 0o644))

	cfg, found, err := Load(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keys: []\n"), 0o644))

	_, found, err := Load(path)
	assert.True(t, found)
	assert.ErrorIs(t, err, ErrInvalid)
}
