package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickthorpe71/legend/internal/config"
)

func newConfigCmd(g *globals) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, obs, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			cfg := e.Config()
			for _, w := range cfg.Validate().Warnings {
				obs.Log().Warn().Msg(w)
			}

			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	configCmd.AddCommand(configShowCmd)
	return configCmd
}
