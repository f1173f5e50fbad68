package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vk/dlsgrid/internal/app"
	"github.com/vk/dlsgrid/internal/executor"
	"github.com/vk/dlsgrid/internal/output"
)

const defaultPort = 7000

func newApp(cmd *cobra.Command, flags *rootFlags, port int) (*app.App, error) {
	cfg, err := flags.config(port)
	if err != nil {
		return nil, err
	}
	return app.NewApp(cmd.ErrOrStderr(), cfg)
}

func newServeCommand(flags *rootFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve every group of the manifest to the other hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.host == "" {
				return usageError("serve requires --host")
			}
			a, err := newApp(cmd, flags, port)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", defaultPort, "Port the dispatch server listens on.")
	return cmd
}

func newRunCommand(flags *rootFlags) *cobra.Command {
	var (
		propagate string
		inputPath string
	)
	cmd := &cobra.Command{
		Use:   "run GROUP",
		Short: "Run a group from this host and print its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.host == "" {
				return usageError("run requires --host")
			}
			mode, err := parsePropagate(propagate)
			if err != nil {
				return err
			}
			in, err := readOutput(inputPath)
			if err != nil {
				return err
			}

			a, err := newApp(cmd, flags, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.RunGroup(cmd.Context(), args[0], in, mode)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res.Output)
		},
	}
	cmd.Flags().StringVar(&propagate, "propagate", "", "Propagation mode. Options: '', 'endless', 'endless-stop'.")
	cmd.Flags().StringVar(&inputPath, "input", "", "JSON file seeding the run's output.")
	return cmd
}

func newPlanCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan GROUP",
		Short: "Print the host-assigned plan of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.Plan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), plan)
		},
	}
}

func parsePropagate(s string) (executor.Propagate, error) {
	switch p := executor.Propagate(s); p {
	case executor.PropagateDefault, executor.PropagateEndless, executor.PropagateEndlessStop:
		return p, nil
	default:
		return "", usageError("invalid propagate: must be '', 'endless' or 'endless-stop'")
	}
}

func readOutput(path string) (*output.Output, error) {
	out := output.New()
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to decode input %s: %w", path, err)
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
