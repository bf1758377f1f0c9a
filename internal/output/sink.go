// Package output records classified check results to files, a database and
// redis.
package output

import (
	"context"
	"errors"
	"strings"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

// Sink matches the engine's result recorder. Close flushes anything buffered.
type Sink interface {
	Record(ctx context.Context, result domain.CheckResult) error
	Close() error
}

// StatusFilter selects which recorded statuses a sink keeps. An empty filter
// keeps everything.
type StatusFilter map[string]struct{}

func NewStatusFilter(statuses []string) StatusFilter {
	filter := make(StatusFilter, len(statuses))
	for _, status := range statuses {
		status = strings.ToUpper(strings.TrimSpace(status))
		if status != "" {
			filter[status] = struct{}{}
		}
	}
	return filter
}

func (f StatusFilter) Allows(result domain.CheckResult) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[statusName(result)]
	return ok
}

func statusName(result domain.CheckResult) string {
	if result.RawStatus != "" {
		return strings.ToUpper(result.RawStatus)
	}
	return result.Status.String()
}

// Multi fans a result out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, result domain.CheckResult) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every result.
type Discard struct{}

func (Discard) Record(context.Context, domain.CheckResult) error { return nil }
func (Discard) Close() error                                     { return nil }
