package orders

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultEffectTimeout = 10 * time.Second

type effect struct {
	name string
	run  func(ctx context.Context) error
}

// afterCommit collects side effects while a transaction is open. They are
// only dispatched once the transaction has committed.
type afterCommit []effect

func (a *afterCommit) add(name string, run func(ctx context.Context) error) {
	*a = append(*a, effect{name: name, run: run})
}

// dispatch runs effects in the background on a context detached from the
// request. Failures and panics are logged and never reach the caller.
func (s *Service) dispatch(ctx context.Context, effects afterCommit) {
	if len(effects) == 0 {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.effectTimeout)
		defer cancel()

		for _, e := range effects {
			if err := s.runEffect(ctx, e); err != nil {
				s.logger.Warn("post-commit side effect failed", zap.String("effect", e.name), zap.Error(err))
			}
		}
	}()
}

func (s *Service) runEffect(ctx context.Context, e effect) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.run(ctx)
}

// Drain waits for dispatched side effects to finish or ctx to expire.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
