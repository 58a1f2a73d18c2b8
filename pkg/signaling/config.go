package signaling

import (
	"time"

	"github.com/HMasataka/meeting/pkg/retry"
)

const (
	defaultTimeout       = 10000
	defaultRetryAttempts = 3
	defaultRetryInterval = 200
	defaultRetryMax      = 2000
)

// Config はバックエンドAPIの接続設定です。時間はミリ秒で指定します。
type Config struct {
	BaseURL       string `toml:"baseurl"`
	Token         string `toml:"token"`
	Timeout       int    `toml:"timeout"`
	RetryAttempts int    `toml:"retryattempts"`
	RetryInterval int    `toml:"retryinterval"`
	RetryMax      int    `toml:"retrymax"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:8080/api",
		Timeout:       defaultTimeout,
		RetryAttempts: defaultRetryAttempts,
		RetryInterval: defaultRetryInterval,
		RetryMax:      defaultRetryMax,
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout * time.Millisecond
	}
	return time.Duration(c.Timeout) * time.Millisecond
}

func (c Config) retry() retry.Config {
	cfg := retry.DefaultConfig()
	if c.RetryAttempts > 0 {
		cfg.Attempts = c.RetryAttempts
	}
	if c.RetryInterval > 0 {
		cfg.BaseInterval = time.Duration(c.RetryInterval) * time.Millisecond
	}
	if c.RetryMax > 0 {
		cfg.MaxBackoff = time.Duration(c.RetryMax) * time.Millisecond
	}
	return cfg
}
