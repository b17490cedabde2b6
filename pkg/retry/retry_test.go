package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), nil, func(ctx context.Context) error {
		attempts++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_PermanentError(t *testing.T) {
	attempts := 0
	permanentErr := errors.New("permanent")
	classifier := func(err error) bool { return !errors.Is(err, permanentErr) }

	err := Do(context.Background(), fastConfig(3), classifier, func(ctx context.Context) error {
		attempts++
		return permanentErr
	})
	assert.ErrorIs(t, err, permanentErr)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, attempts)
}

func TestDo_RecoversAfterTransientErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), nil, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_Exhausted(t *testing.T) {
	attempts := 0
	transient := errors.New("transient")
	err := Do(context.Background(), fastConfig(2), nil, func(ctx context.Context) error {
		attempts++
		return transient
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, attempts)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second

	attempts := 0
	err := Do(ctx, cfg, nil, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
