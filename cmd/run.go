package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/renmiamu/dvnet/core"
	"github.com/renmiamu/dvnet/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a node",
	Long: `This will start the node given by --id and attach an interactive console to it.
Type help in the console for the available commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if nodeId == "" {
			return errors.New("--id is required")
		}
		ncfg, lcfg, err := core.ReadConfig(configPath, state.NodeId(nodeId))
		if err != nil {
			return err
		}
		if logPath, _ := cmd.Flags().GetString("log"); logPath != "" {
			lcfg.LogPath = logPath
		}
		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		debugAddr, _ := cmd.Flags().GetString("debug-addr")
		return core.Start(*ncfg, *lcfg, level, debugAddr, NewConsole(os.Stdin, os.Stdout))
	},
	GroupID: "node",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().String("log", "", "Also append logs to this file")
	runCmd.Flags().String("debug-addr", "", "Serve metrics and expvar on this address, e.g. 127.0.0.1:6060")
}
