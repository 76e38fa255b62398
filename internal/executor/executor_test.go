package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opmodel/opc/internal/core"
	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/pkg/opcrt"
)

type charge struct{ Amount int }

type refund struct{}

// namedOp stands for whichever operation its name says.
type namedOp struct{ name string }

func (n namedOp) OperationName() string { return n.name }

func entry(d *core.OperationDescriptor, fn func(ctx context.Context, op any) (any, error)) Entry {
	return Entry{Descriptor: d, Exec: opcrt.ExecutorFunc(fn)}
}

func compiled(t *testing.T, entries ...Entry) *Executor {
	t.Helper()
	e := New()
	require.NoError(t, e.Compile(context.Background(), func(context.Context) ([]Entry, error) {
		return entries, nil
	}))
	return e
}

func TestExecutor_StateMachine(t *testing.T) {
	t.Run("compiles once", func(t *testing.T) {
		e := New()
		assert.Equal(t, StateUncompiled, e.State())

		var seen State
		err := e.Compile(context.Background(), func(context.Context) ([]Entry, error) {
			seen = e.State()
			return nil, nil
		})
		require.NoError(t, err)
		assert.Equal(t, StateCompiling, seen)
		assert.Equal(t, StateCompiled, e.State())

		calls := 0
		err = e.Compile(context.Background(), func(context.Context) ([]Entry, error) {
			calls++
			return nil, nil
		})
		var dup *DuplicateConfigurationError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, StateCompiled, dup.State)
		assert.ErrorIs(t, err, oerrors.ErrDuplicateConfiguration)
		assert.Zero(t, calls, "a second configuration never runs")
		assert.Equal(t, StateCompiled, e.State())
	})

	t.Run("build failure faults permanently", func(t *testing.T) {
		e := New()
		boom := errors.New("cycle")
		err := e.Compile(context.Background(), func(context.Context) ([]Entry, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
		assert.Equal(t, StateFaulted, e.State())
		assert.Equal(t, boom, e.Fault())

		_, err = e.Execute(context.Background(), &charge{})
		assert.ErrorIs(t, err, oerrors.ErrNotCompiled)

		err = e.Compile(context.Background(), func(context.Context) ([]Entry, error) { return nil, nil })
		assert.ErrorIs(t, err, oerrors.ErrDuplicateConfiguration)
		assert.Equal(t, StateFaulted, e.State())
	})

	t.Run("panicking build faults instead of hanging in compiling", func(t *testing.T) {
		e := New()
		err := e.Compile(context.Background(), func(context.Context) ([]Entry, error) {
			panic("builder exploded")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "builder exploded")
		assert.Equal(t, StateFaulted, e.State())
		assert.Equal(t, err, e.Fault())

		err = e.Compile(context.Background(), func(context.Context) ([]Entry, error) { return nil, nil })
		assert.ErrorIs(t, err, oerrors.ErrDuplicateConfiguration)
	})

	t.Run("uncompiled executor refuses requests", func(t *testing.T) {
		_, err := New().Execute(context.Background(), &charge{})
		assert.ErrorIs(t, err, oerrors.ErrNotCompiled)
	})

	t.Run("one operation registered twice", func(t *testing.T) {
		d := core.Describe[*charge]()
		noop := func(context.Context, any) (any, error) { return nil, nil }
		e := New()
		err := e.Compile(context.Background(), func(context.Context) ([]Entry, error) {
			return []Entry{entry(d, noop), entry(d, noop)}, nil
		})
		var dup *DuplicateConfigurationError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "charge", dup.Operation)
		assert.Equal(t, StateFaulted, e.State())
	})

	t.Run("two operations sharing a type", func(t *testing.T) {
		a := core.Describe[*charge]()
		b := core.Describe[*charge]()
		b.Name = "charge-again"
		noop := func(context.Context, any) (any, error) { return nil, nil }
		e := New()
		err := e.Compile(context.Background(), func(context.Context) ([]Entry, error) {
			return []Entry{entry(a, noop), entry(b, noop)}, nil
		})
		assert.ErrorIs(t, err, oerrors.ErrDuplicateConfiguration)
	})
}

func TestExecutor_Dispatch(t *testing.T) {
	chargeD := core.Describe[*charge]()
	listD := core.Describe[namedOp]()
	listD.Name, listD.ByName = "list", true
	getD := core.Describe[namedOp]()
	getD.Name, getD.ByName = "get", true

	e := compiled(t,
		entry(chargeD, func(_ context.Context, op any) (any, error) { return op.(*charge).Amount * 2, nil }),
		entry(listD, func(context.Context, any) (any, error) { return "list", nil }),
		entry(getD, func(context.Context, any) (any, error) { return "get", nil }),
	)

	t.Run("by runtime type", func(t *testing.T) {
		got, err := Execute[int](context.Background(), e, &charge{Amount: 4})
		require.NoError(t, err)
		assert.Equal(t, 8, got)
	})

	t.Run("by operation name", func(t *testing.T) {
		got, err := e.Execute(context.Background(), namedOp{name: "get"})
		require.NoError(t, err)
		assert.Equal(t, "get", got)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := e.Execute(context.Background(), &refund{})
		assert.ErrorIs(t, err, oerrors.ErrNotFound)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := e.Execute(context.Background(), namedOp{name: "delete"})
		require.ErrorIs(t, err, oerrors.ErrNotFound)
		assert.Contains(t, err.Error(), `"delete"`)
	})

	t.Run("nil operation", func(t *testing.T) {
		_, err := e.Execute(context.Background(), nil)
		assert.ErrorIs(t, err, oerrors.ErrValidation)
	})

	t.Run("wrong result type", func(t *testing.T) {
		_, err := Execute[string](context.Background(), e, &charge{})
		assert.Error(t, err)
	})

	assert.Equal(t, []*core.OperationDescriptor{chargeD, listD, getD}, e.Operations())
}

func TestExecutor_Failures(t *testing.T) {
	declined := errors.New("card declined")
	var fail atomic.Bool
	d := core.Describe[*charge]()
	e := compiled(t, entry(d, func(ctx context.Context, op any) (any, error) {
		if fail.Load() {
			return nil, &opcrt.FrameError{Frame: "authorize", Err: declined}
		}
		select {
		case <-time.After(time.Duration(op.(*charge).Amount) * time.Millisecond):
			return "ok", nil
		case <-ctx.Done():
			return nil, &opcrt.FrameError{Frame: "settle", Err: ctx.Err()}
		}
	}))

	t.Run("frame failure is an execution error", func(t *testing.T) {
		fail.Store(true)
		defer fail.Store(false)

		_, err := e.Execute(context.Background(), &charge{})
		var oe *OperationExecutionError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, "charge", oe.Operation)
		assert.Equal(t, "authorize", oe.Frame)
		assert.ErrorIs(t, err, declined)
		assert.ErrorIs(t, err, oerrors.ErrOperationFailed)
		assert.Equal(t, `operation "charge" failed in frame "authorize": card declined`, err.Error())
		assert.Equal(t, StateCompiled, e.State(), "request failures never fault the executor")
	})

	t.Run("deadline is a distinct cancelled outcome", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()

		_, err := e.Execute(ctx, &charge{Amount: 1000})
		var ce *OperationCancelledError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "settle", ce.Frame)
		assert.ErrorIs(t, err, oerrors.ErrCancelled)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, oerrors.ErrOperationFailed)
	})

	t.Run("already cancelled context never runs", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.Execute(ctx, &charge{})
		assert.ErrorIs(t, err, oerrors.ErrCancelled)
	})
}

func TestExecutor_ExecuteAll(t *testing.T) {
	d := core.Describe[*charge]()
	var running, peak atomic.Int32
	e := compiled(t, entry(d, func(_ context.Context, op any) (any, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		amount := op.(*charge).Amount
		if amount < 0 {
			return nil, fmt.Errorf("negative amount %d", amount)
		}
		return amount, nil
	}))

	ops := make([]any, 20)
	for i := range ops {
		amount := i
		if i == 7 {
			amount = -1
		}
		ops[i] = &charge{Amount: amount}
	}

	results := e.ExecuteAll(context.Background(), ops, 4)
	require.Len(t, results, len(ops))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		if i == 7 {
			assert.ErrorIs(t, r.Err, oerrors.ErrOperationFailed)
			continue
		}
		require.NoError(t, r.Err)
		assert.Equal(t, i, r.Value)
	}
	assert.LessOrEqual(t, peak.Load(), int32(4))

	t.Run("cancelled batch reports every request", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		results := e.ExecuteAll(ctx, ops[:3], 2)
		for _, r := range results {
			var ce *OperationCancelledError
			require.ErrorAs(t, r.Err, &ce)
			assert.Equal(t, "charge", ce.Operation)
		}
	})

	assert.Empty(t, e.ExecuteAll(context.Background(), nil, 2))
}
