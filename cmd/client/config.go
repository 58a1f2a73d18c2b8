package main

import (
	"fmt"
	"os"

	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/HMasataka/meeting/pkg/rtc"
	"github.com/HMasataka/meeting/pkg/signaling"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Meeting   meeting.Config   `toml:"meeting"`
	RTC       rtc.Config       `toml:"rtc"`
	Signaling signaling.Config `toml:"signaling"`
}

func DefaultConfig() Config {
	return Config{
		Meeting:   meeting.DefaultConfig(),
		RTC:       rtc.DefaultConfig(),
		Signaling: signaling.DefaultConfig(),
	}
}

// loadConfig は既定値にTOMLファイルの内容を重ねます。path が空なら既定値を返します。
func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}
