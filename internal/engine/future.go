package engine

import (
	"context"
	"sync"
)

// Future is the pending result of a submitted command. It is resolved exactly
// once, after every subscriber has observed the command's output.
type Future struct {
	seq    int64
	done   chan struct{}
	once   sync.Once
	result CommandResult
}

func newFuture(seq int64) *Future {
	return &Future{seq: seq, done: make(chan struct{})}
}

// resolvedFuture returns a future for a command that was never sequenced.
func resolvedFuture(code ResultCode, err error) *Future {
	f := newFuture(0)
	res := CommandResult{Code: code}
	if err != nil {
		res.Message = err.Error()
	}
	f.resolve(res)
	return f
}

func (f *Future) resolve(res CommandResult) {
	f.once.Do(func() {
		f.result = res
		close(f.done)
	})
}

// Sequence returns the assigned sequence number, 0 if the command was rejected
// before sequencing.
func (f *Future) Sequence() int64 {
	return f.seq
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the result if it is available.
func (f *Future) Result() (CommandResult, bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		return CommandResult{}, false
	}
}

// Wait blocks until the result is available or ctx is done. Giving up on the
// wait does not cancel the command.
func (f *Future) Wait(ctx context.Context) (CommandResult, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
}
