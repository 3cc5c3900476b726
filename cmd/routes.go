package cmd

import (
	"fmt"

	"github.com/renmiamu/dvnet/core"
	"github.com/renmiamu/dvnet/state"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Prints the converged routing tables of the config",
	Long: `Runs the distance-vector exchange offline over the initial link costs and prints
the routing table every node converges to. With --id, only that node's table is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ncfg, err := readNetwork()
		if err != nil {
			return err
		}
		states := core.Converge(ncfg)
		nodes := ncfg.GetNodes()
		if nodeId != "" {
			if _, ok := states[state.NodeId(nodeId)]; !ok {
				return fmt.Errorf("%w: %s", core.ErrUnknownPeer, nodeId)
			}
			nodes = []state.NodeId{state.NodeId(nodeId)}
		}
		out := cmd.OutOrStdout()
		for _, id := range nodes {
			fmt.Fprintf(out, "%s:\n", id)
			for _, e := range core.RoutesOf(states[id]) {
				fmt.Fprintf(out, "  %s\n", e)
			}
		}
		return nil
	},
	GroupID: "cfg",
}

func init() {
	rootCmd.AddCommand(routesCmd)
}
