package submission

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy политика повторов доставки в рамках одного прохода.
// Каждая попытка увеличивает sync_attempts записи на единицу.
type Policy struct {
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// DefaultPolicy одна попытка за проход; остальное делает фоновый синхронизатор.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     1,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}
