package store

import (
	"context"
	"sync"
)

// MemoryTx gives the in-memory store all-or-nothing commits. Mutations made
// inside RunInTx register an undo step; if fn fails the steps run in reverse.
// Isolation comes from the caller's per-session lock, not from this type.
type MemoryTx struct{}

type undoLog struct {
	mu    sync.Mutex
	steps []func()
}

type undoKey struct{}

func (MemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(undoKey{}).(*undoLog); nested {
		return fn(ctx)
	}
	log := &undoLog{}
	if err := fn(context.WithValue(ctx, undoKey{}, log)); err != nil {
		log.mu.Lock()
		defer log.mu.Unlock()
		for i := len(log.steps) - 1; i >= 0; i-- {
			log.steps[i]()
		}
		return err
	}
	return nil
}

func recordUndo(ctx context.Context, step func()) {
	log, ok := ctx.Value(undoKey{}).(*undoLog)
	if !ok {
		return
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	log.steps = append(log.steps, step)
}
