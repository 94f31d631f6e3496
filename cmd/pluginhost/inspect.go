package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren/pkg/activitystore"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <name>",
	Short: "Print the activity record for a single plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().String("data-dir", "./plugin-data", "Directory holding the activity store")
}

func runInspect(cmd *cobra.Command, args []string) error {
	name := args[0]
	dataDir, _ := cmd.Flags().GetString("data-dir")
	store, err := activitystore.Open(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(name)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "plugin:          %s\n", rec.PluginName)
	fmt.Fprintf(cmd.OutOrStdout(), "last loaded at:  %s\n", rec.LastLoadedAt)
	fmt.Fprintf(cmd.OutOrStdout(), "last crash at:   %s\n", rec.LastCrashAt)
	fmt.Fprintf(cmd.OutOrStdout(), "last crash cause:%s\n", rec.LastCrashCause)
	fmt.Fprintf(cmd.OutOrStdout(), "restart count:   %d\n", rec.RestartCount)
	fmt.Fprintf(cmd.OutOrStdout(), "tools:           %d\n", len(rec.LastHooks.Tools))
	fmt.Fprintf(cmd.OutOrStdout(), "providers:       %d\n", len(rec.LastHooks.Providers))
	fmt.Fprintf(cmd.OutOrStdout(), "guides:          %d\n", len(rec.LastHooks.Guides))
	fmt.Fprintf(cmd.OutOrStdout(), "commands:        %d\n", len(rec.LastHooks.Commands))
	return nil
}
