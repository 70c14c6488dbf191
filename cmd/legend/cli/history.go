package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent updates from the journal, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			entries, err := e.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No updates recorded yet.")
				return nil
			}
			for _, en := range entries {
				fmt.Fprintf(out, "%s  %s  features=%d%s\n",
					en.AppliedAt.UTC().Format(time.RFC3339),
					shortID(en.ID),
					en.FeatureCount,
					changes(en.Created, en.Updated, en.Removed))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func changes(created, updated, removed []string) string {
	var b strings.Builder
	for _, part := range []struct {
		sign string
		ids  []string
	}{{"+", created}, {"~", updated}, {"-", removed}} {
		if len(part.ids) > 0 {
			fmt.Fprintf(&b, "  %s%s", part.sign, strings.Join(part.ids, ","))
		}
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
