package build

import (
	"context"
	"errors"
	"go/parser"
	"go/token"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opmodel/opc/internal/core"
	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/pkg/opcrt"
)

// Refund is a second operation type. Its result type differs from the
// operation type so the result is never bound to the argument.
type Refund struct{}

// compileOne lowers, assembles, compiles and links a single operation.
func compileOne(t *testing.T, d *core.OperationDescriptor, middleware ...*core.Frame) opcrt.Executor {
	t.Helper()
	m := lower(t, d, nil, middleware...)
	a, err := NewAssembly("", []*Method{m})
	require.NoError(t, err)
	_, err = NewLinkBackend().Compile(context.Background(), a)
	require.NoError(t, err)
	execs, err := Link(a, nil)
	require.NoError(t, err)
	require.Contains(t, execs, d.Name)
	return execs[d.Name]
}

// recorder collects frame events in the order they happen.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestAssembly_RendersParsableUnit(t *testing.T) {
	price := core.MustFunc("price", func(p *Purchase) int { return 5 })
	stamp := core.MustFunc("stamp", func(ctx context.Context, c *Clock) (*Receipt, error) { return nil, nil }, core.Async())
	guard := core.MustWrap("guard", func(ctx context.Context, next core.Next) (any, error) { return next(ctx) })

	m1 := lower(t, core.Returning[int](core.Describe[*Purchase](price)), nil)
	m2 := lower(t, core.Returning[*Receipt](core.Describe[*Refund](stamp)), core.NewTypeSet(core.TypeOf[*Clock]()), guard)

	a, err := NewAssembly("sha256:abc", []*Method{m1, m2})
	require.NoError(t, err)

	src := string(a.Source)
	assert.True(t, strings.HasPrefix(src, "// Code generated by opc. DO NOT EDIT.\n// Digest: sha256:abc\n\npackage generated\n"))
	assert.Contains(t, src, "import (\n\t\"context\"\n\n\t\"github.com/opmodel/opc/internal/build\"\n\t\"github.com/opmodel/opc/pkg/opcrt\"\n)\n")
	assert.Contains(t, src, "type PurchaseExecutor struct {")
	assert.Contains(t, src, "func NewRefundExecutor(rt *opcrt.Runtime) opcrt.Executor {")
	assert.Contains(t, src, "var _ opcrt.Executor = (*RefundExecutor)(nil)")
	assert.Equal(t, []string{"PurchaseExecutor", "RefundExecutor"}, a.TypeNames())

	_, err = parser.ParseFile(token.NewFileSet(), a.Unit, a.Source, parser.AllErrors)
	assert.NoError(t, err)

	// Positions point at the frame statements in the full unit.
	lines := strings.Split(src, "\n")
	m2.Walk(func(ins *Instr) {
		pos, ok := a.Position(ins)
		require.True(t, ok)
		line := lines[pos.Line-1]
		switch ins.Op {
		case OpWrap:
			assert.Contains(t, line, "e.rt.Wrap(")
		case OpAwait:
			assert.Contains(t, line, ".Await(ctx)")
		case OpResolve:
			assert.Contains(t, line, "opcrt.Resolve[")
		}
	})
}

func TestAssembly_DeduplicatesTypeNames(t *testing.T) {
	a1 := core.Describe[*Purchase](core.MustFunc("a", func(p *Purchase) {}))
	a2 := core.Describe[*Receipt](core.MustFunc("b", func(r *Receipt) {}))
	a1.Name = "create-order"
	a2.Name = "create_order"

	a, err := NewAssembly("", []*Method{lower(t, a1, nil), lower(t, a2, nil)})
	require.NoError(t, err)
	assert.Equal(t, []string{"CreateOrderExecutor", "CreateOrder2Executor"}, a.TypeNames())
}

func TestAssembly_Deterministic(t *testing.T) {
	render := func() []byte {
		fetch := core.MustFunc("fetch", func(ctx context.Context, p *Purchase) (int, error) { return 1, nil }, core.Async())
		total := core.MustFunc("total", func(n int) *Receipt { return nil })
		m := lower(t, core.Returning[*Receipt](core.Describe[*Purchase](fetch, total)), nil)
		a, err := NewAssembly("sha256:1", []*Method{m})
		require.NoError(t, err)
		return a.Source
	}
	assert.Equal(t, render(), render())
}

func TestLink_SyncResult(t *testing.T) {
	price := core.MustFunc("price", func(p *Purchase) int { return 5 })
	exec := compileOne(t, core.Returning[int](core.Describe[*Purchase](price)))

	got, err := exec.Execute(context.Background(), &Purchase{})
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

func TestLink_AsyncOrdering(t *testing.T) {
	rec := &recorder{}
	slow := core.MustFunc("slow", func(ctx context.Context, p *Purchase) (int, error) {
		time.Sleep(30 * time.Millisecond)
		rec.add("slow done")
		return p.Items, nil
	}, core.Async())
	notify := core.MustFunc("notify", func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		rec.add("notify done")
		return nil
	}, core.Async())
	total := core.MustFunc("total", func(n int) *Receipt {
		rec.add("total")
		return &Receipt{Total: n * 2}
	})
	exec := compileOne(t, core.Returning[*Receipt](core.Describe[*Purchase](slow, total)), notify)

	got, err := exec.Execute(context.Background(), &Purchase{Items: 4})
	require.NoError(t, err)
	assert.Equal(t, &Receipt{Total: 8}, got)
	assert.Equal(t, []string{"notify done", "slow done", "total"}, rec.list())
}

func TestLink_NestedRunsRemainderOnce(t *testing.T) {
	var acquired, released, handled int32
	guard := core.MustWrap("guard", func(ctx context.Context, next core.Next) (any, error) {
		atomic.AddInt32(&acquired, 1)
		defer atomic.AddInt32(&released, 1)
		return next(ctx, &Clock{})
	}, core.Provides(core.TypeOf[*Clock]()))

	t.Run("success", func(t *testing.T) {
		atomic.StoreInt32(&acquired, 0)
		atomic.StoreInt32(&released, 0)
		atomic.StoreInt32(&handled, 0)
		handler := core.MustFunc("handler", func(c *Clock, p *Purchase) int {
			atomic.AddInt32(&handled, 1)
			return p.Items
		})
		exec := compileOne(t, core.Returning[int](core.Describe[*Purchase](handler)), guard)

		got, err := exec.Execute(context.Background(), &Purchase{Items: 3})
		require.NoError(t, err)
		assert.Equal(t, 3, got)
		assert.EqualValues(t, 1, atomic.LoadInt32(&handled))
		assert.EqualValues(t, 1, atomic.LoadInt32(&released))
	})

	t.Run("wrapped chain fails", func(t *testing.T) {
		atomic.StoreInt32(&acquired, 0)
		atomic.StoreInt32(&released, 0)
		atomic.StoreInt32(&handled, 0)
		boom := errors.New("boom")
		first := core.MustFunc("first", func(c *Clock) int {
			atomic.AddInt32(&handled, 1)
			return 1
		})
		failing := core.MustFunc("failing", func(n int) (*Receipt, error) {
			atomic.AddInt32(&handled, 1)
			return nil, boom
		})
		exec := compileOne(t, core.Returning[*Receipt](core.Describe[*Purchase](first, failing)), guard)

		_, err := exec.Execute(context.Background(), &Purchase{})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)

		var fe *opcrt.FrameError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "failing", fe.Frame)
		assert.EqualValues(t, 2, atomic.LoadInt32(&handled), "each wrapped frame runs exactly once")
		assert.EqualValues(t, 1, atomic.LoadInt32(&acquired))
		assert.EqualValues(t, 1, atomic.LoadInt32(&released), "release runs on the error path")
	})
}

func TestLink_Cancellation(t *testing.T) {
	started := make(chan struct{})
	block := core.MustFunc("block", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, core.Async())
	var after int32
	handler := core.MustFunc("handler", func(p *Purchase) int {
		atomic.AddInt32(&after, 1)
		return 1
	})
	exec := compileOne(t, core.Returning[int](core.Describe[*Purchase](handler)), block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := exec.Execute(ctx, &Purchase{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&after), "nothing after the suspension point runs")
}

func TestLink_ConcurrentRequestsAreIsolated(t *testing.T) {
	double := core.MustFunc("double", func(ctx context.Context, p *Purchase) (int, error) {
		time.Sleep(time.Millisecond)
		return p.Items * 2, nil
	}, core.Async())
	exec := compileOne(t, core.Returning[int](core.Describe[*Purchase](double)))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := exec.Execute(context.Background(), &Purchase{Items: n})
			assert.NoError(t, err)
			assert.Equal(t, n*2, got)
		}(i)
	}
	wg.Wait()
}

func TestLink_PrepareFailureIsCompilationError(t *testing.T) {
	bad := core.MustFunc("script", func(p *Purchase) int { return 0 })
	bad.Prepare = func() error { return errors.New("SyntaxError: Unexpected token )") }
	d := core.Returning[int](core.Describe[*Purchase](bad))

	m := lower(t, d, nil)
	a, err := NewAssembly("", []*Method{m})
	require.NoError(t, err)

	_, err = Link(a, nil)
	require.Error(t, err)

	var ce *CompilationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Purchase", ce.Operation())
	assert.Equal(t, "script", ce.Frame)
	assert.Positive(t, ce.Line)
	assert.True(t, errors.Is(err, oerrors.ErrCompilation))
	assert.Contains(t, ce.Details(), "e.rt.Call(ctx, 0, in)")
	assert.NotContains(t, ce.Error(), "e.rt.Call", "generated source stays out of the message")
}

func TestLinkBackend_SyntaxError(t *testing.T) {
	price := core.MustFunc("price", func(p *Purchase) int { return 5 })
	m := lower(t, core.Returning[int](core.Describe[*Purchase](price)), nil)
	a, err := NewAssembly("", []*Method{m})
	require.NoError(t, err)

	// Corrupt the statement emitted for the price frame.
	pos, ok := a.Position(&m.Body[0])
	require.True(t, ok)
	lines := strings.Split(string(a.Source), "\n")
	lines[pos.Line-1] = "\tout0, err := e.rt.Call(ctx, 0, in"
	a.Source = []byte(strings.Join(lines, "\n"))

	_, err = NewLinkBackend().Compile(context.Background(), a)
	require.Error(t, err)

	var ce *CompilationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, UnitName, ce.Unit)
	assert.Equal(t, "Purchase", ce.OperationName)
	assert.Equal(t, "price", ce.Frame)
	assert.GreaterOrEqual(t, ce.Line, pos.Line)
	assert.NotEmpty(t, ce.Diagnostic)
}

func TestLinkBackend_TypeMismatch(t *testing.T) {
	handler := core.MustFunc("handler", func(p *Purchase) int { return 1 })
	m := lower(t, core.Returning[int](core.Describe[*Purchase](handler)), nil)

	// Simulate a frame whose statement passes the wrong slot.
	m.Slots[ArgumentSlot].Type = core.TypeOf[*Receipt]()
	a, err := NewAssembly("", []*Method{m})
	require.NoError(t, err)

	_, err = NewLinkBackend().Compile(context.Background(), a)
	var ce *CompilationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "handler", ce.Frame)
	assert.Contains(t, ce.Diagnostic, "cannot use in (*build.Receipt) as *build.Purchase value in argument 0")
	pos, _ := a.Position(&m.Body[0])
	assert.Equal(t, pos.Line, ce.Line)
}

func TestLinkBackend_CancelledContext(t *testing.T) {
	m := lower(t, core.Describe[*Purchase](core.MustFunc("noop", func(p *Purchase) {})), nil)
	a, err := NewAssembly("", []*Method{m})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewLinkBackend().Compile(ctx, a)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssembly_Emit(t *testing.T) {
	m := lower(t, core.Describe[*Purchase](core.MustFunc("noop", func(p *Purchase) {})), nil)
	a, err := NewAssembly("", []*Method{m})
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := a.Emit(dir + "/out")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, UnitName))
}
