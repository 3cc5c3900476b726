package cmd

import (
	"fmt"

	"github.com/renmiamu/dvnet/core"
	"github.com/renmiamu/dvnet/state"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validates the network config",
	Long: `Checks the address book and link table of the config file.
With --id, the node-level settings of that peer are checked as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ncfg, err := readNetwork()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if nodeId != "" {
			_, lcfg, err := core.ReadConfig(configPath, state.NodeId(nodeId))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "node: %s\n", lcfg)
		}
		fmt.Fprintf(out, "Config is valid: %d peers, %d links\n", len(ncfg.Peers), len(ncfg.Edges()))
		return nil
	},
	GroupID: "cfg",
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
