package cmd

import (
	"os"

	"github.com/renmiamu/dvnet/state"
	"github.com/spf13/cobra"
)

var (
	configPath string
	nodeId     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dvnet",
	Short: "Distance-vector overlay with reliable file transfer",
	Long: `dvnet runs one peer of a static UDP overlay.
Peers compute multi-hop routes with a distance-vector protocol and use them to move files reliably over lossy datagrams.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "node",
		Title: "Node Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "cfg",
		Title: "Configuration Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", state.DefaultConfigPath, "network config")
	rootCmd.PersistentFlags().StringVarP(&nodeId, "id", "i", "", "identity of this node in the address book")
}
