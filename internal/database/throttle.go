package database

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

// Throttled limits how many statements per second reach the wrapped
// executor. Statements inside a transaction share the same limiter.
type Throttled struct {
	next    core.Executor
	limiter *rate.Limiter
}

// NewThrottled wraps next with a token bucket of perSecond tokens and the
// given burst. A burst below one is raised to one.
func NewThrottled(next core.Executor, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttled) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}
	return nil
}

func (t *Throttled) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if err := t.wait(ctx); err != nil {
		return 0, err
	}
	return t.next.Exec(ctx, query, args...)
}

func (t *Throttled) Query(ctx context.Context, query string, args []any, scan func(core.Row) error) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.Query(ctx, query, args, scan)
}

func (t *Throttled) WithTx(ctx context.Context, fn func(ctx context.Context, tx core.Executor) error) error {
	return t.next.WithTx(ctx, func(ctx context.Context, tx core.Executor) error {
		wrapped := &Throttled{next: tx, limiter: t.limiter}
		return fn(core.ContextWithExecutor(ctx, wrapped), wrapped)
	})
}

func (t *Throttled) Dialect() core.Dialect {
	return t.next.Dialect()
}
