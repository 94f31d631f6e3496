package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren/pkg/activitystore"
)

var listPluginsCmd = &cobra.Command{
	Use:   "list-plugins",
	Short: "List every plugin the activity store has a record for",
	RunE:  runListPlugins,
}

func init() {
	listPluginsCmd.Flags().String("data-dir", "./plugin-data", "Directory holding the activity store")
}

func runListPlugins(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	store, err := activitystore.Open(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no plugins recorded yet")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tloaded=%s\trestarts=%d\n", r.PluginName, r.LastLoadedAt.Format("2006-01-02T15:04:05Z07:00"), r.RestartCount)
	}
	return nil
}
