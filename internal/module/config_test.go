package module

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/SensorHub/internal/adapters/transport"
	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/protocol"
)

func TestApplyDefaultsFromLayout(t *testing.T) {
	cfg := Config{Channels: []ChannelConfig{{Protocol: ProtocolConfig{Preset: protocol.PresetTruPulseHV}}}}
	cfg.ApplyDefaults()

	assert.Equal(t, "sensorhub", cfg.Name)
	assert.Equal(t, defaultStopTimeout, cfg.StopTimeout)
	ch := cfg.Channels[0]
	assert.Equal(t, "rangeData", ch.Name)
	assert.Equal(t, 20*time.Minute, ch.SamplingPeriod)
	assert.Equal(t, 1, ch.Decimation)
	assert.True(t, ch.IsEnabled())
	assert.True(t, ch.IsPush())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Config{Channels: []ChannelConfig{{Protocol: ProtocolConfig{Preset: protocol.PresetTruPulseHV}}}}
		cfg.ApplyDefaults()
		return cfg
	}
	cases := map[string]func(*Config){
		"no channels":       func(c *Config) { c.Channels = nil },
		"negative capacity": func(c *Config) { c.Channels[0].StorageCapacity = -1 },
		"zero decimation":   func(c *Config) { c.Channels[0].Decimation = 0 },
		"bad transport":     func(c *Config) { c.Channels[0].Transport = transport.Config{Kind: "tcp"} },
		"preset and layout": func(c *Config) {
			l := protocol.TruPulseHV()
			c.Channels[0].Protocol.Layout = &l
		},
		"invalid layout": func(c *Config) {
			c.Channels[0].Protocol = ProtocolConfig{Layout: &protocol.Layout{Name: "x"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrConfiguration)
		})
	}
}

func TestChannelConfigFromYAML(t *testing.T) {
	raw := `
id: 7b0c2a8e-0000-4000-8000-000000000001
name: rangefinder
stop_timeout: 2s
channels:
  - name: thermo
    push: false
    storage_capacity: 3
    decimation: 2
    protocol:
      layout:
        name: temperature
        delimiter: ";"
        prefix: T
        fields:
          - name: temp
            unit: degC
            value_token: 1
            unit_token: -1
    transport:
      kind: file
      path: capture.txt
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Second, cfg.StopTimeout)
	ch := cfg.Channels[0]
	assert.False(t, ch.IsPush())
	assert.True(t, ch.IsEnabled())
	assert.Equal(t, 2, ch.Decimation)
	require.NotNil(t, ch.Protocol.Layout)
	assert.Equal(t, "temp", ch.Protocol.Layout.Fields[0].Name)
	assert.Equal(t, -1, ch.Protocol.Layout.Fields[0].UnitToken)
	assert.Equal(t, transport.KindFile, ch.Transport.Kind)
}
