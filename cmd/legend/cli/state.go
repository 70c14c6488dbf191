package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nickthorpe71/legend/internal/config"
	"github.com/nickthorpe71/legend/internal/feature"
	"github.com/nickthorpe71/legend/internal/merge"
	"github.com/nickthorpe71/legend/internal/storage"
)

func newInitCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the state directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.Init(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !res.StateCreated && !res.ConfigCreated {
				fmt.Fprintf(out, "Legend already initialized in %s\n", res.Dir)
				fmt.Fprintln(out, "  Use 'legend show' to view current state")
				return nil
			}
			fmt.Fprintln(out, "✓ Initialized Legend")
			if res.StateCreated {
				fmt.Fprintf(out, "  Saved initial state to %s\n", filepath.Join(res.Dir, storage.StateFile))
			}
			if res.ConfigCreated {
				fmt.Fprintf(out, "  Wrote default configuration to %s\n", filepath.Join(res.Dir, config.FileName))
			}
			return nil
		},
	}
}

// stateDocument is the get_state output: the State plus summary counts.
type stateDocument struct {
	*feature.State
	FeatureCount int           `json:"feature_count"`
	Stats        feature.Stats `json:"stats"`
}

func newGetStateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get_state",
		Short: "Print the current state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()

			e, obs, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			snap, err := e.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			if err := writeJSON(cmd.OutOrStdout(), stateDocument{
				State:        snap.State,
				FeatureCount: len(snap.State.Features),
				Stats:        snap.Stats,
			}); err != nil {
				return err
			}

			obs.Log().Info().
				Int("features", len(snap.State.Features)).
				Int("elapsed_ms", int(time.Since(start).Milliseconds())).
				Msg("state loaded")
			return nil
		},
	}
}

func newUpdateCmd(g *globals) *cobra.Command {
	var (
		file   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Merge an update document from stdin into the state",
		Long: `Reads an update document (JSON or YAML) from stdin, or from --file, and
merges it into the state. Unknown ids are created and need name, domain and
description; known ids only change the fields that are present. Tags and
files_involved are unioned. Ids in remove_features are deleted and win over
patches for the same id. The update is applied completely or not at all.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := merge.ParseFormat(format)
			if err != nil {
				return &feature.ValidationError{Field: "--format", Reason: err.Error()}
			}

			in, closeIn, err := openInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			defer closeIn()

			u, err := merge.Decode(in, f)
			if err != nil {
				return err
			}

			e, _, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.Apply(cmd.Context(), u)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated state: %d features total (%s)\n", res.FeatureCount, summarize(res.Report))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the update from a file instead of stdin")
	cmd.Flags().StringVar(&format, "format", "auto", "Update format: json, yaml or auto")
	return cmd
}

func summarize(r merge.Report) string {
	parts := []string{
		fmt.Sprintf("%d created", len(r.Created)),
		fmt.Sprintf("%d updated", len(r.Updated)),
		fmt.Sprintf("%d removed", len(r.Removed)),
	}
	return strings.Join(parts, ", ")
}
