package engine

import (
	"fmt"
	"strconv"

	"github.com/roach88/persist/internal/ir"
)

// passQuota bounds the scheduler passes of one run.
//
// Every pass must execute at least one command, so a run over n atomic
// commands needs at most n passes. The quota catches graphs that are
// deeper than the caller is willing to wait for; stuck graphs are caught
// by the no-progress check.
type passQuota struct {
	maxPasses int
	current   int
}

// newPassQuota creates a quota. A limit of zero or less disables it.
func newPassQuota(maxPasses int) *passQuota {
	return &passQuota{maxPasses: maxPasses}
}

// Check counts one pass and fails once the limit is exceeded.
func (q *passQuota) Check() error {
	q.current++
	if q.maxPasses > 0 && q.current > q.maxPasses {
		return ir.NewOrderingError(
			fmt.Sprintf("pass budget exceeded: %d passes > %d limit", q.current, q.maxPasses),
			map[string]string{"limit": strconv.Itoa(q.maxPasses)},
		)
	}
	return nil
}

// Current returns the passes counted so far.
func (q *passQuota) Current() int {
	return q.current
}
