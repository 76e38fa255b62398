package output

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunWithSpinner_WithoutTerminal(t *testing.T) {
	if IsTTY() {
		t.Skip("stdout is a terminal")
	}

	ran := 0
	err := RunWithSpinner(context.Background(), func() error {
		ran++
		return nil
	}, WithTitle("Compiling ops.cue"))
	assert.NoError(t, err)
	assert.Equal(t, 1, ran)

	boom := errors.New("compile failed")
	err = RunWithSpinner(context.Background(), func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestWithTitle(t *testing.T) {
	cfg := &spinnerConfig{}
	WithTitle("Compiling ops.yaml")(cfg)
	assert.Equal(t, "Compiling ops.yaml", cfg.title)
}
