package build

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opmodel/opc/internal/core"
)

// lower runs middleware frames plus the descriptor's handlers through the
// resolver and the method builder.
func lower(t *testing.T, d *core.OperationDescriptor, container core.TypeSet, middleware ...*core.Frame) *Method {
	t.Helper()
	mc := core.NewMethodContext(d)
	mc.Enter("test")
	require.NoError(t, mc.Append(middleware...))
	_, err := mc.Seal()
	require.NoError(t, err)

	res, err := Order(RequestFor(mc, container))
	require.NoError(t, err)

	m, err := NewMethodBuilder().Build(d, res)
	require.NoError(t, err)
	return m
}

func TestMethodBuilder_SyncSource(t *testing.T) {
	price := core.MustFunc("price", func(p *Purchase) int { return 5 })
	d := core.Returning[int](core.Describe[*Purchase](price))

	m := lower(t, d, nil)

	want := `// Execute runs operation "Purchase".
func (e *PurchaseExecutor) Execute(ctx context.Context, op any) (any, error) {
	in := opcrt.As[*build.Purchase](op)
	// price (sync)
	out0, err := e.rt.Call(ctx, 0, in)
	if err != nil {
		return nil, err
	}
	v1 := opcrt.As[int](out0[0])
	return v1, nil
}
`
	assert.Equal(t, want, m.Source())
	assert.False(t, m.Async)
	assert.Empty(t, m.SuspensionPoints())
}

func TestMethodBuilder_AsyncSuspends(t *testing.T) {
	fetch := core.MustFunc("fetch", func(ctx context.Context, p *Purchase) (int, error) { return p.Items, nil },
		core.Async())
	total := core.MustFunc("total", func(n int) *Receipt { return &Receipt{Total: n} })
	d := core.Returning[*Receipt](core.Describe[*Purchase](fetch, total))

	m := lower(t, d, nil)
	src := m.Source()

	assert.True(t, m.Async)
	assert.Equal(t, []string{"fetch"}, m.SuspensionPoints())
	assert.Contains(t, src, "// Suspends at: fetch.")
	assert.Contains(t, src, "// fetch (async-returning)")
	assert.Contains(t, src, "out0, err := e.rt.Go(ctx, 0, in).Await(ctx)")

	// The statement after the suspension point is emitted after the await.
	assert.Less(t, strings.Index(src, "Await(ctx)"), strings.Index(src, "e.rt.Call(ctx, 1, v1)"))
}

func TestMethodBuilder_NestedWrapsRemainder(t *testing.T) {
	guard := core.MustWrap("guard", func(ctx context.Context, next core.Next) (any, error) {
		return next(ctx, &Clock{})
	}, core.Provides(core.TypeOf[*Clock]()))
	audit := core.MustFunc("audit", func(c *Clock, p *Purchase) {})
	handler := core.MustFunc("handler", func(p *Purchase) int { return p.Items })
	d := core.Returning[int](core.Describe[*Purchase](handler))

	m := lower(t, d, nil, guard, audit)

	require.Len(t, m.Body, 1)
	wrap := m.Body[0]
	assert.Equal(t, OpWrap, wrap.Op)
	require.Len(t, wrap.Body, 2)
	assert.Equal(t, "audit", m.Frames[wrap.Body[0].Frame].Name)
	assert.Equal(t, "handler", m.Frames[wrap.Body[1].Frame].Name)

	src := m.Source()
	assert.Contains(t, src, "return e.rt.Wrap(ctx, 0, []any{}, func(ctx context.Context, out0 []any) (any, error) {")
	assert.Contains(t, src, "\t\tv1 := opcrt.As[*build.Clock](out0[0])")
	assert.Contains(t, src, "\t\tif _, err := e.rt.Call(ctx, 1, v1, in); err != nil {")
	assert.Contains(t, src, "\t\treturn v2, nil\n\t})\n}\n")
}

func TestMethodBuilder_ContainerServices(t *testing.T) {
	stamp := core.MustFunc("stamp", func(c *Clock) int { return 1 })
	d := core.Returning[int](core.Describe[*Purchase](stamp))

	m := lower(t, d, core.NewTypeSet(core.TypeOf[*Clock]()))
	src := m.Source()

	assert.Contains(t, src, "scope := e.rt.Scope()")
	assert.Contains(t, src, "v1, err := opcrt.Resolve[*build.Clock](ctx, scope)")
	assert.NotContains(t, src, "in := ", "unused argument must not be declared")
	assert.Equal(t, OpResolve, m.Body[0].Op)
}

func TestMethodBuilder_UnusedOutputs(t *testing.T) {
	side := core.MustFunc("side", func(p *Purchase) {})
	d := core.Describe[*Purchase](side)

	src := lower(t, d, nil).Source()
	assert.Contains(t, src, "if _, err := e.rt.Call(ctx, 0, in); err != nil {")
	assert.Contains(t, src, "return nil, nil")
}

func TestMethodBuilder_Deterministic(t *testing.T) {
	build := func() string {
		fetch := core.MustFunc("fetch", func(ctx context.Context, p *Purchase) (int, error) { return 1, nil },
			core.Async(), core.WithDoc("loads the line items"))
		guard := core.MustWrap("guard", func(ctx context.Context, next core.Next) (any, error) { return next(ctx) })
		total := core.MustFunc("total", func(n int, c *Clock) *Receipt { return nil })
		d := core.Returning[*Receipt](core.Describe[*Purchase](fetch, total))
		return lower(t, d, core.NewTypeSet(core.TypeOf[*Clock]()), guard).Source()
	}

	first := build()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, build(), "rendering must be byte-identical")
	}
	assert.Contains(t, first, "//   loads the line items")
}

func TestExecutorTypeName(t *testing.T) {
	tests := []struct {
		op   string
		want string
	}{
		{"Purchase", "PurchaseExecutor"},
		{"create-order", "CreateOrderExecutor"},
		{"orders.list_all", "OrdersListAllExecutor"},
		{"42", "Op42Executor"},
		{"", "OpExecutor"},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			assert.Equal(t, tt.want, ExecutorTypeName(tt.op))
		})
	}
}
