package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opmodel/opc/internal/build"
	"github.com/opmodel/opc/internal/container"
	"github.com/opmodel/opc/internal/core"
	"github.com/opmodel/opc/pkg/opcrt"
)

// createOrder is a validating operation.
type createOrder struct {
	Customer string
	Qty      int
}

func (c *createOrder) Validate() error {
	if c.Qty <= 0 {
		return errors.New("qty must be positive")
	}
	return nil
}

// getOrder does not validate itself.
type getOrder struct {
	ID string
}

type order struct {
	ID  string `json:"id"`
	Qty int    `json:"qty"`
}

// compiled is one operation pushed through the whole build.
type compiled struct {
	exec    opcrt.Executor
	mc      *core.MethodContext
	details []MatchDetail
}

func (c compiled) run(t *testing.T, op any) (any, error) {
	t.Helper()
	return c.exec.Execute(context.Background(), op)
}

func compile(t *testing.T, reg *Registry, d *core.OperationDescriptor, c *container.Container) compiled {
	t.Helper()
	if c == nil {
		c = container.New()
	}
	mc := core.NewMethodContext(d)
	details, err := reg.ApplyAll(d, mc)
	require.NoError(t, err)
	_, err = mc.Seal()
	require.NoError(t, err)

	res, err := build.Order(build.RequestFor(mc, core.NewTypeSet(c.Types()...)))
	require.NoError(t, err)
	m, err := build.NewMethodBuilder().Build(d, res)
	require.NoError(t, err)
	a, err := build.NewAssembly("", []*build.Method{m})
	require.NoError(t, err)
	_, err = build.NewLinkBackend().Compile(context.Background(), a)
	require.NoError(t, err)
	execs, err := build.Link(a, c)
	require.NoError(t, err)
	return compiled{exec: execs[d.Name], mc: mc, details: details}
}

func createOrderDescriptor(handlers ...*core.Frame) *core.OperationDescriptor {
	if len(handlers) == 0 {
		handlers = []*core.Frame{core.MustFunc("create", func(c *createOrder) *order {
			return &order{ID: "o-1", Qty: c.Qty}
		})}
	}
	return core.Returning[*order](core.Describe[*createOrder](handlers...)).WithVerb("post", "/orders")
}
