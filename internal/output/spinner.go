package output

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh/spinner"
)

// SpinnerOption configures RunWithSpinner.
type SpinnerOption func(*spinnerConfig)

type spinnerConfig struct {
	title string
}

// WithTitle sets the text shown beside the spinner.
func WithTitle(title string) SpinnerOption {
	return func(c *spinnerConfig) {
		c.title = title
	}
}

// RunWithSpinner runs action while a spinner is shown on the terminal and
// returns the action's error. Without a TTY the action runs inline. A
// cancelled ctx stops the spinner but the action still runs to completion.
func RunWithSpinner(ctx context.Context, action func() error, opts ...SpinnerOption) error {
	cfg := &spinnerConfig{title: "Compiling..."}
	for _, opt := range opts {
		opt(cfg)
	}

	if !IsTTY() {
		return action()
	}

	done := make(chan error, 1)
	go func() { done <- action() }()

	spinErr := spinner.New().Title(cfg.title).Context(ctx).ActionWithErr(func(ctx context.Context) error {
		select {
		case err := <-done:
			done <- err
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}).Run()

	if err := <-done; err != nil {
		return err
	}
	if spinErr != nil && ctx.Err() == nil {
		return fmt.Errorf("spinner: %w", spinErr)
	}
	return nil
}
