package main

import (
	"context"
	"time"

	dErrors "kycgate/pkg/domain-errors"
)

const defaultCommitTimeout = 5 * time.Second

type txRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// boundedTx caps how long a commit may hold a database transaction. Commits
// run detached from the request context, so without this a stuck statement
// would hold row locks indefinitely.
type boundedTx struct {
	inner   txRunner
	timeout time.Duration
}

func newBoundedTx(inner txRunner) *boundedTx {
	return &boundedTx{inner: inner, timeout: defaultCommitTimeout}
}

func (t *boundedTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.inner.RunInTx(ctx, fn)
}
