package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opmodel/opc/internal/core"
)

func TestRegistry_Register(t *testing.T) {
	noop := func(mc *core.MethodContext) error { return nil }

	t.Run("rejects nil", func(t *testing.T) {
		assert.Error(t, NewRegistry().Register(nil))
	})

	t.Run("rejects empty names", func(t *testing.T) {
		assert.Error(t, NewRegistry().Register(New("", nil, noop)))
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(New("audit", nil, noop)))
		err := r.Register(New("audit", nil, noop))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"audit" already registered`)
	})

	t.Run("keeps registration order", func(t *testing.T) {
		r := NewRegistry().MustRegister(New("b", nil, noop), New("a", nil, noop))
		var names []string
		for _, b := range r.Builders() {
			names = append(names, b.Name())
		}
		assert.Equal(t, []string{"b", "a"}, names)
	})
}

func TestRegistry_ApplyAll(t *testing.T) {
	var order []string
	tag := func(name string) func(mc *core.MethodContext) error {
		return func(mc *core.MethodContext) error {
			order = append(order, name)
			return mc.Append(core.MustFunc(name, func() {}, core.Always()))
		}
	}

	r := NewRegistry().MustRegister(
		New("first", nil, tag("first")),
		New("never", func(d *core.OperationDescriptor) bool { return false }, tag("never")),
		New("second", nil, tag("second")),
	)

	d := createOrderDescriptor()
	mc := core.NewMethodContext(d)
	details, err := r.ApplyAll(d, mc)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, []MatchDetail{
		{Builder: "first", Matched: true},
		{Builder: "never", Matched: false},
		{Builder: "second", Matched: true},
	}, details)

	frames := mc.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, "first", mc.Origin(frames[0]))
	assert.Equal(t, "second", mc.Origin(frames[1]))

	sealed, err := mc.Seal()
	require.NoError(t, err)
	assert.Empty(t, mc.Origin(sealed[len(sealed)-1]), "handlers are not attributed to a builder")
}

func TestRegistry_ApplyAllError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry().MustRegister(New("broken", nil, func(mc *core.MethodContext) error { return boom }))

	d := createOrderDescriptor()
	_, err := r.ApplyAll(d, core.NewMethodContext(d))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `middleware "broken": operation "createOrder"`)
}

func TestRegistry_Configs(t *testing.T) {
	r := Defaults(Options{RateLimit: 10, Burst: 5})
	configs := r.Configs()

	var names []string
	for _, c := range configs {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"ratelimit", "logging", "validation", "metrics", "events", "transaction", "links"}, names)
	assert.Equal(t, map[string]string{"rps": "10", "burst": "5"}, configs[0].Config)
	assert.Nil(t, configs[1].Config)
}

func TestDefaults_Explain(t *testing.T) {
	r := Defaults(Options{})
	d := core.Describe[*getOrder](core.MustFunc("get", func(g *getOrder) *order { return nil }))
	details, err := r.ApplyAll(d, core.NewMethodContext(d))
	require.NoError(t, err)

	for _, detail := range details {
		assert.False(t, detail.Matched, detail.Builder)
	}
	assert.Equal(t, "no limit configured", details[0].Reason)
	assert.Contains(t, details[2].Reason, "does not implement Validate")
	assert.Equal(t, "not labelled transactional", details[4].Reason)
}

func TestDisabledByLabel(t *testing.T) {
	r := NewRegistry().MustRegister(NewValidation())
	d := createOrderDescriptor().WithLabel("validation", "off")
	c := compile(t, r, d, nil)

	assert.False(t, c.details[0].Matched)
	assert.Equal(t, "disabled by label", c.details[0].Reason)

	_, err := c.exec.Execute(context.Background(), &createOrder{Qty: 0})
	assert.NoError(t, err)
}
