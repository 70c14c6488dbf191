package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickthorpe71/legend/internal/discover"
)

func newDiscoverCmd(g *globals) *cobra.Command {
	var emitUpdate bool

	cmd := &cobra.Command{
		Use:   "discover [path]",
		Short: "Scan a project tree and suggest features",
		Long: `Walks the project (default ".") and prints a JSON report of file types,
top-level directories and features suggested from subdirectories of the
configured source roots. With --emit-update the suggestions are printed as an
update document instead:

  legend discover --emit-update | legend update`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			e, obs, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			cfg := e.Config().Discover
			rep, err := discover.Scan(cmd.Context(), root, discover.Options{
				SourceRoots: cfg.SourceRoots,
				Skip:        cfg.Skip,
				MinFiles:    cfg.MinFiles,
			})
			if err != nil {
				return err
			}

			obs.Log().Info().
				Str("root", rep.Root).
				Int("files", rep.TotalFiles).
				Int("suggested", len(rep.PotentialFeatures)).
				Msg("discovery complete")

			errOut := cmd.ErrOrStderr()
			fmt.Fprintf(errOut, "Discovered %d files in %s\n", rep.TotalFiles, rep.Root)
			fmt.Fprintf(errOut, "Languages: %s\n", rep.LanguageSummary())
			fmt.Fprintf(errOut, "Suggested features: %d\n", len(rep.PotentialFeatures))

			if emitUpdate {
				return writeJSON(cmd.OutOrStdout(), rep.Update())
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}

	cmd.Flags().BoolVar(&emitUpdate, "emit-update", false, "Print an update document that creates the suggested features")
	return cmd
}
