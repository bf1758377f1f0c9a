package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Binz120/OpenBullet2/internal/domain"
	"github.com/Binz120/OpenBullet2/internal/proxies"
)

// task is one check over one line, with an optional proxy lease. It is owned
// by the worker executing it.
type task struct {
	line  domain.DataLine
	lease *proxies.Lease
	start time.Time
}

func (t *task) proxy() *domain.Proxy {
	if t.lease == nil {
		return nil
	}
	p := t.lease.Proxy
	return &p
}

type checkReply struct {
	outcome domain.Outcome
	err     error
}

// runCheck executes check under timeout. A check that ignores its context is
// abandoned once the timeout expires; a panic becomes ErrTaskPanic.
func runCheck(ctx context.Context, check Check, input domain.BotInput, timeout time.Duration) (domain.Outcome, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	replies := make(chan checkReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- checkReply{err: fmt.Errorf("%w: %v", ErrTaskPanic, r)}
			}
		}()
		outcome, err := check.Run(tctx, input)
		replies <- checkReply{outcome: outcome, err: err}
	}()

	select {
	case reply := <-replies:
		if reply.err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return reply.outcome, fmt.Errorf("%w after %s: %w", ErrTaskTimeout, timeout, reply.err)
		}
		return reply.outcome, reply.err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return domain.Outcome{}, err
		}
		return domain.Outcome{}, fmt.Errorf("%w after %s", ErrTaskTimeout, timeout)
	}
}

// classify maps a check outcome onto the status taxonomy. The returned string
// is the status as recorded: canonical for known statuses, raw otherwise.
func classify(outcome domain.Outcome, err error) (domain.Status, string) {
	switch {
	case errors.Is(err, ErrNoProxyAvailable):
		return domain.StatusRetry, domain.StatusRetry.String()
	case err != nil:
		return domain.StatusError, domain.StatusError.String()
	}

	status, ok := domain.ParseStatus(outcome.Status)
	if !ok {
		log.Warn("Unrecognized check status", "status", outcome.Status)
		return status, outcome.Status
	}
	return status, status.String()
}
