package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nickthorpe71/legend/internal/feature"
	"github.com/nickthorpe71/legend/internal/index"
	"github.com/nickthorpe71/legend/internal/ui/tui"
)

func newShowCmd(g *globals) *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the features as a table, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			snap, err := e.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			features := snap.Index.Features(snap.Index.Recency)

			if !interactive {
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderTable(features, snap.Stats))
				return nil
			}

			title := "Legend"
			if snap.State.ProjectName != "" {
				title = "Legend · " + snap.State.ProjectName
			}
			program := tea.NewProgram(
				tui.NewModel(title, features, snap.Stats),
				tea.WithAltScreen(),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
				tea.WithContext(cmd.Context()),
			)
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("interactive browser failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Browse features in an interactive TUI")
	return cmd
}

func newSearchCmd(g *globals) *cobra.Command {
	var (
		status string
		domain string
		tags   []string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "search [keyword]",
		Short: "Print the features matching the filters as JSON, most recent first",
		Long: `Filters combine with AND. --status and --domain match exactly; --tag
matches features carrying any of the given tags; --file takes a path or a
glob such as "src/**/*.go"; the optional keyword is a case-insensitive
substring of the id, name, description, context or tags.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := index.Query{Domain: domain, Tags: tags, File: file}
			if len(args) == 1 {
				q.Keyword = strings.TrimSpace(args[0])
			}
			if status != "" {
				st, err := feature.ParseStatus(status)
				if err != nil {
					return err
				}
				q.Status = st
			}

			e, obs, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			matches, err := e.Search(cmd.Context(), q)
			if err != nil {
				return err
			}

			obs.Log().Info().Int("matches", len(matches)).Msg("search complete")
			return writeJSON(cmd.OutOrStdout(), matches)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Exact status: Pending, InProgress, Blocked or Complete")
	cmd.Flags().StringVar(&domain, "domain", "", "Exact domain")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Tag to match (repeatable; any tag matches)")
	cmd.Flags().StringVar(&file, "file", "", "File path or doublestar glob")
	return cmd
}
