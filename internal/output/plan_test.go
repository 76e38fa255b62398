package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() []OperationPlan {
	return []OperationPlan{{
		Operation: "create-order",
		Verb:      "POST",
		Route:     "/orders",
		Type:      "*manifest.Request",
		Async:     true,
		Suspends:  []string{"ratelimit"},
		Builders: []BuilderDecision{
			{Name: "ratelimit", Matched: true, Reason: "limit configured"},
			{Name: "transaction", Matched: false, Reason: "label transactional is not \"true\""},
		},
		Frames: []PlannedFrame{
			{Name: "ratelimit", Mode: "async", Origin: "ratelimit"},
			{Name: "price", Mode: "sync", Inputs: []string{"input:interface {}"}, Outputs: []string{"price:interface {}"}},
		},
		Pruned:   []string{"unused"},
		Services: []string{"*sql.DB"},
	}}
}

func TestWritePlan_Human(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePlan(samplePlan(), PlanOptions{Format: FormatText, Writer: &buf}))

	out := stripAnsi(buf.String())
	assert.Contains(t, out, "POST /orders create-order")
	assert.Contains(t, out, "✓ ratelimit")
	assert.Contains(t, out, "✗ transaction")
	assert.Contains(t, out, " 1. ratelimit [async] ratelimit")
	assert.Contains(t, out, " 2. price [sync] handler")
	assert.Contains(t, out, "Pruned:   unused")
	assert.Contains(t, out, "Services: *sql.DB")
	assert.Contains(t, out, "Suspends: ratelimit")
}

func TestWritePlan_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePlan(samplePlan(), PlanOptions{Format: FormatJSON, Writer: &buf}))

	var decoded []OperationPlan
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "create-order", decoded[0].Operation)
	assert.Len(t, decoded[0].Frames, 2)
}

func TestWritePlan_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePlan(samplePlan(), PlanOptions{Format: FormatTable, Writer: &buf}))
	assert.Contains(t, buf.String(), "OPERATION")
	assert.Contains(t, buf.String(), "create-order")
}
