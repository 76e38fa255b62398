package script

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/opmodel/opc/internal/core"
)

type payload map[string]any

func (p payload) ScriptInput() map[string]any { return p }

func TestStep_Validate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr string
	}{
		{"valid", Step{Name: "total", Expr: "1", Uses: []string{"price"}}, ""},
		{"dashed name", Step{Name: "line-total", Expr: "1"}, "JavaScript identifier"},
		{"reserved name", Step{Name: "input", Expr: "1"}, "reserved"},
		{"bad dependency", Step{Name: "total", Expr: "1", Uses: []string{"9x"}}, "invalid dependency"},
		{"uses itself", Step{Name: "total", Expr: "1", Uses: []string{"total"}}, "cannot use itself"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFrame_Shape(t *testing.T) {
	f, err := Frame(Step{Name: "total", Expr: "price * input.qty", Uses: []string{"price"}, Async: true})
	require.NoError(t, err)

	assert.Equal(t, core.ModeAsyncReturning, f.Mode)
	require.Len(t, f.Inputs, 2)
	assert.Equal(t, inputType, f.Inputs[0].Type)
	assert.Equal(t, core.Variable{Type: valueType, Name: "price"}, f.Inputs[1])
	require.Len(t, f.Outputs, 1)
	assert.Equal(t, "total", f.Outputs[0].Name)
	assert.Same(t, f, f.Outputs[0].Creator)
	assert.Equal(t, []string{"script: price * input.qty"}, f.Doc)
}

func TestFrame_Run(t *testing.T) {
	f, err := Frame(Step{Name: "total", Expr: "price * input.qty", Uses: []string{"price"}})
	require.NoError(t, err)
	require.NoError(t, f.Prepare())

	out, err := f.Call(context.Background(), []any{payload{"qty": 3}, Value{V: 5}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.EqualValues(t, 15, out[0].(Value).V)

	t.Run("each call gets a fresh runtime", func(t *testing.T) {
		counter, err := Frame(Step{Name: "n", Expr: "var seen = (typeof seen === 'undefined') ? 1 : seen + 1; seen"})
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			out, err := counter.Call(context.Background(), []any{payload{}})
			require.NoError(t, err)
			assert.EqualValues(t, 1, out[0].(Value).V)
		}
	})

	t.Run("objects export as maps", func(t *testing.T) {
		obj, err := Frame(Step{Name: "receipt", Expr: "({id: input.id, total: 2})"})
		require.NoError(t, err)
		out, err := obj.Call(context.Background(), []any{payload{"id": "o-1"}})
		require.NoError(t, err)
		m, ok := out[0].(Value).V.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "o-1", m["id"])
	})

	t.Run("undefined is nil", func(t *testing.T) {
		noop, err := Frame(Step{Name: "noop", Expr: "undefined"})
		require.NoError(t, err)
		out, err := noop.Call(context.Background(), []any{nil})
		require.NoError(t, err)
		assert.Nil(t, out[0].(Value).V)
	})
}

func TestFrame_Errors(t *testing.T) {
	t.Run("syntax errors fail Prepare", func(t *testing.T) {
		f, err := Frame(Step{Name: "broken", Expr: "1 +"})
		require.NoError(t, err, "syntax is checked when prepared")
		assert.Error(t, f.Prepare())
	})

	t.Run("thrown errors fail the call", func(t *testing.T) {
		f, err := Frame(Step{Name: "thrower", Expr: "throw new Error('out of stock')"})
		require.NoError(t, err)
		_, err = f.Call(context.Background(), []any{payload{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of stock")
	})

	t.Run("cancellation interrupts the runtime", func(t *testing.T) {
		f, err := Frame(Step{Name: "spin", Expr: "for (;;) {}"})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = f.Call(ctx, []any{payload{}})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestValue_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Value{V: map[string]any{"id": "o-1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"o-1"}`, string(data))
}

func TestValue_MarshalYAML(t *testing.T) {
	data, err := yaml.Marshal(Value{V: []any{"a", 1}})
	require.NoError(t, err)
	assert.Equal(t, "- a\n- 1\n", string(data))
}
