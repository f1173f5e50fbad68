package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vk/dlsgrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// rootFlags are the flags shared by every command.
type rootFlags struct {
	manifest        string
	host            string
	logFormat       string
	logLevel        string
	jaegerAgent     string
	dispatchTimeout time.Duration
}

// config validates the shared flags and turns them into an app.Config.
func (f *rootFlags) config(port int) (*app.Config, error) {
	logFormat := strings.ToLower(f.logFormat)
	if logFormat != "text" && logFormat != "json" {
		return nil, usageError("invalid log-format: must be 'text' or 'json'")
	}

	logLevel := strings.ToLower(f.logLevel)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	slog.Debug("CLI parameter validation complete.")

	cfg, err := app.NewConfig(app.Config{
		ManifestPath:    f.manifest,
		HostName:        f.host,
		ListenPort:      port,
		JaegerAgent:     f.jaegerAgent,
		DispatchTimeout: f.dispatchTimeout,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})
	if err != nil {
		return nil, usageError("%s", err.Error())
	}
	return cfg, nil
}

// NewRootCommand builds the dlsgrid command tree. Command results are
// written to outW and logs to errW.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "dlsgrid",
		Short: "A data-locality span scheduler",
		Long: `dlsgrid runs groups of dependent spans across a fleet of hosts, placing
each span on the host that owns the resources it needs and handing the run
over to that host when the walk reaches it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("%s", err.Error())
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.manifest, "manifest", "m", "", "Path to the manifest file or directory.")
	pf.StringVar(&flags.host, "host", "", "Name of this host in the manifest.")
	pf.StringVar(&flags.logFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&flags.jaegerAgent, "jaeger-agent", "", "Jaeger agent host:port. Empty disables tracing.")
	pf.DurationVar(&flags.dispatchTimeout, "dispatch-timeout", app.DefaultDispatchTimeout, "Timeout of one hand-over to another host.")

	root.AddCommand(
		newServeCommand(flags),
		newRunCommand(flags),
		newPlanCommand(flags),
	)
	return root
}

// Execute runs the command tree with args until ctx is cancelled.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	slog.Debug("CLI parser started.")
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
