package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	dErrors "kycgate/pkg/domain-errors"
)

type recordingTx struct {
	deadline bool
}

func (r *recordingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	_, r.deadline = ctx.Deadline()
	return fn(ctx)
}

func TestBoundedTxAddsDeadline(t *testing.T) {
	inner := &recordingTx{}
	tx := newBoundedTx(inner)

	err := tx.RunInTx(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
	assert.True(t, inner.deadline)
}

func TestBoundedTxKeepsCallerDeadline(t *testing.T) {
	inner := &recordingTx{}
	tx := &boundedTx{inner: inner, timeout: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var got time.Time
	_ = tx.RunInTx(ctx, func(ctx context.Context) error {
		got, _ = ctx.Deadline()
		return nil
	})
	want, _ := ctx.Deadline()
	assert.Equal(t, want, got)
}

func TestBoundedTxRejectsCancelledContext(t *testing.T) {
	tx := newBoundedTx(&recordingTx{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := tx.RunInTx(ctx, func(context.Context) error { called = true; return nil })
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.False(t, called)
}
