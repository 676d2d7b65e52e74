package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LED LEDConfig `yaml:"led"`
	Web WebConfig `yaml:"web"`
}

type LEDConfig struct {
	// Backend selects the GPIO access path for software-PWM channels:
	// "gpiod" (Linux character device, default) or "rpio" (memory-mapped
	// BCM registers, legacy Pi).
	Backend string `yaml:"backend"`
	// FrequencyHz is the PWM pulse frequency applied to all channels.
	FrequencyHz float64        `yaml:"frequency_hz"`
	Color       ColorConfig    `yaml:"color"`
	Breathe     BreatheConfig  `yaml:"breathe"`
	Channels    ChannelsConfig `yaml:"channels"`
}

type ColorConfig struct {
	R uint8 `yaml:"r"`
	G uint8 `yaml:"g"`
	B uint8 `yaml:"b"`
}

type BreatheConfig struct {
	Enable bool    `yaml:"enable"`
	RateHz float64 `yaml:"rate_hz"`
	Steps  int     `yaml:"steps"`
}

type ChannelsConfig struct {
	Red   ChannelConfig `yaml:"red"`
	Green ChannelConfig `yaml:"green"`
	Blue  ChannelConfig `yaml:"blue"`
}

// ChannelConfig maps one LED leg onto either a plain GPIO (software PWM) or
// a hardware PWM channel. Setting pwm_chip selects hardware PWM and gpio is
// ignored for that leg.
type ChannelConfig struct {
	GPIO       int    `yaml:"gpio"`
	PWMChip    string `yaml:"pwm_chip"`
	PWMChannel int    `yaml:"pwm_channel"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills in defaults and rejects configs the daemon could
// not run with. Also used before saving settings changes back to disk.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	switch cfg.LED.Backend {
	case "":
		cfg.LED.Backend = "gpiod"
	case "gpiod", "rpio":
	default:
		return fmt.Errorf("led.backend must be gpiod or rpio, got %q", cfg.LED.Backend)
	}

	if cfg.LED.FrequencyHz == 0 {
		cfg.LED.FrequencyHz = 100
	}
	if cfg.LED.FrequencyHz < 0 {
		return fmt.Errorf("led.frequency_hz must be > 0")
	}

	if cfg.LED.Breathe.RateHz == 0 {
		cfg.LED.Breathe.RateHz = 0.5
	}
	if cfg.LED.Breathe.RateHz < 0 {
		return fmt.Errorf("led.breathe.rate_hz must be > 0")
	}
	if cfg.LED.Breathe.Steps == 0 {
		cfg.LED.Breathe.Steps = 64
	}
	if cfg.LED.Breathe.Steps < 0 {
		return fmt.Errorf("led.breathe.steps must be > 0")
	}

	for _, ch := range []struct {
		name string
		cfg  ChannelConfig
	}{
		{"red", cfg.LED.Channels.Red},
		{"green", cfg.LED.Channels.Green},
		{"blue", cfg.LED.Channels.Blue},
	} {
		if ch.cfg.PWMChip != "" {
			if ch.cfg.PWMChannel < 0 {
				return fmt.Errorf("led.channels.%s.pwm_channel must be >= 0", ch.name)
			}
			continue
		}
		if ch.cfg.GPIO <= 0 {
			return fmt.Errorf("led.channels.%s.gpio is required", ch.name)
		}
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	return nil
}
