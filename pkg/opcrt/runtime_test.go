package opcrt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opmodel/opc/internal/core"
)

func TestRuntime_CallWrapsFrameErrors(t *testing.T) {
	boom := errors.New("boom")
	rt := NewRuntime([]*core.Frame{
		core.MustFunc("ok", func(n int) int { return n * 2 }),
		core.MustFunc("fail", func() (int, error) { return 0, boom }),
		core.MustFunc("panics", func() int { panic("kaboom") }),
	}, nil)
	ctx := context.Background()

	out, err := rt.Call(ctx, 0, 21)
	require.NoError(t, err)
	assert.Equal(t, []any{42}, out)

	_, err = rt.Call(ctx, 1)
	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "fail", fe.Frame)
	assert.ErrorIs(t, err, boom)

	_, err = rt.Call(ctx, 2)
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "panics", fe.Frame)
	assert.Contains(t, fe.Error(), "kaboom")
	assert.NotEmpty(t, fe.Stack)
}

func TestRuntime_CallRefusesDoneContext(t *testing.T) {
	ran := false
	rt := NewRuntime([]*core.Frame{core.MustFunc("x", func() { ran = true })}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rt.Call(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestFuture_AwaitHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	rt := NewRuntime([]*core.Frame{
		core.MustFunc("slow", func() int { <-release; return 1 }, core.Async()),
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := rt.Go(ctx, 0).Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuture_AwaitReturnsOutputs(t *testing.T) {
	rt := NewRuntime([]*core.Frame{
		core.MustFunc("later", func() string {
			time.Sleep(5 * time.Millisecond)
			return "done"
		}, core.Async()),
	}, nil)

	out, err := rt.Go(context.Background(), 0).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"done"}, out)
}

type resource struct{ released bool }

func TestRuntime_WrapReleasesOnError(t *testing.T) {
	res := &resource{}
	nested := core.MustWrap("scope", func(ctx context.Context, next core.Next) (any, error) {
		defer func() { res.released = true }()
		return next(ctx, res)
	}, core.Provides(core.TypeOf[*resource]()))
	rt := NewRuntime([]*core.Frame{nested}, nil)

	inner := &FrameError{Frame: "handler", Err: errors.New("handler failed")}
	runs := 0
	_, err := rt.Wrap(context.Background(), 0, nil, func(ctx context.Context, provided []any) (any, error) {
		runs++
		assert.Same(t, res, provided[0])
		return nil, inner
	})

	assert.Same(t, inner, err)
	assert.Equal(t, 1, runs)
	assert.True(t, res.released)
}

func TestRuntime_WrapRejectsSecondInvocation(t *testing.T) {
	nested := core.MustWrap("twice", func(ctx context.Context, next core.Next) (any, error) {
		if _, err := next(ctx); err != nil {
			return nil, err
		}
		return next(ctx)
	})
	rt := NewRuntime([]*core.Frame{nested}, nil)

	runs := 0
	_, err := rt.Wrap(context.Background(), 0, nil, func(ctx context.Context, provided []any) (any, error) {
		runs++
		return nil, nil
	})

	assert.ErrorIs(t, err, ErrNextReused)
	assert.Equal(t, 1, runs)
}

func TestRuntime_WrapAttributesOwnErrors(t *testing.T) {
	nested := core.MustWrap("guard", func(ctx context.Context, next core.Next) (any, error) {
		return nil, errors.New("denied")
	})
	rt := NewRuntime([]*core.Frame{nested}, nil)

	_, err := rt.Wrap(context.Background(), 0, nil, func(ctx context.Context, provided []any) (any, error) {
		t.Fatal("remainder must not run")
		return nil, nil
	})

	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "guard", fe.Frame)
}

func TestAs(t *testing.T) {
	assert.Equal(t, 0, As[int](nil))
	assert.Nil(t, As[*resource](nil))
	assert.Equal(t, "x", As[string]("x"))
}
