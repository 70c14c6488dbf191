package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nickthorpe71/legend/internal/config"
	"github.com/nickthorpe71/legend/internal/engine"
	"github.com/nickthorpe71/legend/internal/feature"
	"github.com/nickthorpe71/legend/internal/guard"
	"github.com/nickthorpe71/legend/internal/observe"
)

// Exit codes returned by Execute.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitCorrupted  = 3
	ExitCapacity   = 4
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	dir     string
	verbose bool
	logJSON bool
}

// NewRootCmd builds a fresh command tree. Each call returns independent
// flag state, so tests can run commands side by side.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "legend",
		Short: "Lightweight context memory for AI-assisted development",
		Long: `Legend keeps a compact record of a project's features (what they are,
where they live and how far along they are) in a .legend/ directory, so an
assistant can load the whole picture at the start of every session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.dir, "dir", engine.DefaultDir, "State directory")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().BoolVar(&g.logJSON, "log-json", false, "Write logs as JSON")

	root.AddCommand(
		newInitCmd(g),
		newGetStateCmd(g),
		newUpdateCmd(g),
		newShowCmd(g),
		newSearchCmd(g),
		newDiscoverCmd(g),
		newHistoryCmd(g),
		newConfigCmd(g),
	)
	return root
}

// Execute runs the CLI and exits with a code that reflects the error kind.
func Execute() {
	os.Exit(Run(NewRootCmd(), os.Stderr))
}

// Run executes root and reports any error on stderr, returning the exit code.
func Run(root *cobra.Command, stderr io.Writer) int {
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCode(err)
	}
	return ExitOK
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, feature.ErrValidation):
		return ExitValidation
	case errors.Is(err, feature.ErrCorrupted):
		return ExitCorrupted
	case errors.Is(err, feature.ErrCapacity):
		return ExitCapacity
	default:
		return ExitFailure
	}
}

// observer builds the logger for a command. Logs go to stderr so stdout
// carries only command output.
func (g *globals) observer(cmd *cobra.Command, cfg config.Config) *observe.Observer {
	verbose := g.verbose || cfg.Log.Verbose
	if g.logJSON || cfg.Log.Format == "json" {
		return observe.NewJSON(cmd.ErrOrStderr(), verbose)
	}
	return observe.New(cmd.ErrOrStderr(), verbose)
}

// openEngine loads the directory's config, sets up logging from it and
// opens the engine.
func (g *globals) openEngine(cmd *cobra.Command) (*engine.Engine, *observe.Observer, error) {
	cfg, err := config.Load(g.dir, guard.New(guard.DefaultPolicy))
	if err != nil {
		return nil, nil, err
	}
	obs := g.observer(cmd, cfg)

	e, err := engine.Open(engine.Options{Dir: g.dir, Observer: obs})
	if err != nil {
		return nil, nil, err
	}
	return e, obs, nil
}
