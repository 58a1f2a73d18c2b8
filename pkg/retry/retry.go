package retry

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"time"
)

// Config はリトライの設定を保持する
type Config struct {
	Attempts     int
	BaseInterval time.Duration
	MaxBackoff   time.Duration
}

// DefaultConfig はデフォルトのリトライ設定を返す
func DefaultConfig() Config {
	return Config{
		Attempts:     3,
		BaseInterval: 100 * time.Millisecond,
		MaxBackoff:   2 * time.Second,
	}
}

// Backoff は指数バックオフ + ジッターを計算する
func Backoff(attempt int, baseInterval, maxBackoff time.Duration) time.Duration {
	d := baseInterval << attempt
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	// +/-10% jitter
	return time.Duration(int64(d) * int64(9+rand.Intn(3)) / 10)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent はリトライしないエラーとして err を包む
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ShouldRetry はエラーに基づいてリトライすべきか判定する
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Do は fn が成功するかリトライ不可のエラーを返すまで、最大 cfg.Attempts 回実行する。
// 返すエラーは最後の fn のエラーで、Permanent の包みは外される。
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempts := max(cfg.Attempts, 1)

	var err error
	for i := range attempts {
		if err = fn(ctx); !ShouldRetry(err) || i == attempts-1 {
			break
		}

		timer := time.NewTimer(Backoff(i, cfg.BaseInterval, cfg.MaxBackoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}

	var permanent *permanentError
	if errors.As(err, &permanent) {
		return permanent.err
	}
	return err
}
