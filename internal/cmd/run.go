package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opmodel/opc/internal/cmdtypes"
	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/internal/output"
)

type runOptions struct {
	input     string
	inputFile string
	batch     bool
	timeout   time.Duration
	format    string
}

// NewRunCmd creates the run command.
func NewRunCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &runOptions{}

	c := &cobra.Command{
		Use:   "run MANIFEST OPERATION",
		Short: "Execute one operation of a manifest",
		Long: `Compile a manifest and execute one operation.

The payload is a JSON object given with --input or --input-file. With
--batch the payload is a JSON array and each element runs as its own
request over build.workers workers; one failure does not stop the others.

A --timeout that expires ends the request as cancelled (exit code 9).

Examples:
  opc run ops.cue quote --input '{"qty": 3}'
  opc run ops.cue quote --batch --input '[{"qty": 1}, {"qty": 2}]'`,
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return exitError(c, runOperation(c, gc, args[0], args[1], opts))
		},
	}
	c.Flags().StringVar(&opts.input, "input", "", "JSON payload")
	c.Flags().StringVarP(&opts.inputFile, "input-file", "f", "", "file containing the JSON payload")
	c.Flags().BoolVar(&opts.batch, "batch", false, "treat the payload as an array of requests")
	c.Flags().DurationVar(&opts.timeout, "timeout", 0, "cancel the request after this duration")
	c.Flags().StringVarP(&opts.format, "output", "o", "json", "result format: json, yaml")
	return c
}

func runOperation(c *cobra.Command, gc *cmdtypes.GlobalConfig, path, operation string, opts *runOptions) error {
	format, ok := output.ParseOutputFormat(opts.format)
	if !ok || (format != output.FormatJSON && format != output.FormatYAML) {
		return oerrors.NewValidationError(fmt.Sprintf("unsupported result format %q", opts.format), "", "output", "use json or yaml")
	}

	raw, err := readInput(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context())
	defer cancel()
	bus := startBus(ctx)
	defer bus.Stop()

	s, err := loadStack(path, stackOptions{Bus: bus})
	if err != nil {
		return err
	}
	exec, _, err := s.compile(ctx)
	if err != nil {
		return err
	}

	if opts.timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, opts.timeout)
		defer stop()
	}

	if !opts.batch {
		var payload map[string]any
		if err := decodePayload(raw, &payload); err != nil {
			return err
		}
		req, err := s.Manifest.NewRequest(operation, payload)
		if err != nil {
			return err
		}
		res, err := exec.Execute(ctx, req)
		if err != nil {
			return err
		}
		return output.WriteValue(c.OutOrStdout(), format, res)
	}

	var payloads []map[string]any
	if err := decodePayload(raw, &payloads); err != nil {
		return err
	}
	ops := make([]any, 0, len(payloads))
	for _, p := range payloads {
		req, err := s.Manifest.NewRequest(operation, p)
		if err != nil {
			return err
		}
		ops = append(ops, req)
	}

	type batchResult struct {
		Index  int    `json:"index" yaml:"index"`
		Result any    `json:"result,omitempty" yaml:"result,omitempty"`
		Error  string `json:"error,omitempty" yaml:"error,omitempty"`
	}
	results := exec.ExecuteAll(ctx, ops, gc.Workers())
	out := make([]batchResult, len(results))
	var failed []error
	for i, r := range results {
		out[i] = batchResult{Index: r.Index, Result: r.Value}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			failed = append(failed, r.Err)
		}
	}
	if err := output.WriteValue(c.OutOrStdout(), format, out); err != nil {
		return err
	}
	if len(failed) > 0 {
		output.Warn("batch finished with failures", "failed", len(failed), "total", len(results))
		return failed[0]
	}
	return nil
}

func readInput(opts *runOptions) ([]byte, error) {
	switch {
	case opts.input != "" && opts.inputFile != "":
		return nil, oerrors.NewValidationError("--input and --input-file are mutually exclusive", "", "input", "")
	case opts.inputFile != "":
		data, err := os.ReadFile(opts.inputFile)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, oerrors.NewNotFoundError("input file does not exist", opts.inputFile, "")
			}
			return nil, fmt.Errorf("reading input: %w", err)
		}
		return data, nil
	case opts.input != "":
		return []byte(opts.input), nil
	case opts.batch:
		return []byte("[]"), nil
	default:
		return []byte("{}"), nil
	}
}

func decodePayload(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return oerrors.NewValidationError("invalid JSON payload: "+err.Error(), "", "input", "")
	}
	return nil
}
