package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"memoryd/internal/tools"
)

var toolsJSON bool

// toolsCmd dumps the tool manifest
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered tools",
	Long:  `Prints the tool manifest: every operation the daemon dispatches, grouped by category.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Registration never touches storage, so an empty dependency set is
		// enough to enumerate the manifest.
		reg := tools.BuildRegistry(tools.Deps{})
		manifest := reg.Manifest()

		if toolsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(manifest)
		}

		byCategory := make(map[tools.Category][]tools.ManifestEntry)
		for _, entry := range manifest {
			byCategory[entry.Category] = append(byCategory[entry.Category], entry)
		}
		categories := make([]string, 0, len(byCategory))
		for c := range byCategory {
			categories = append(categories, string(c))
		}
		sort.Strings(categories)

		for _, c := range categories {
			fmt.Printf("%s:\n", c)
			for _, entry := range byCategory[tools.Category(c)] {
				fmt.Printf("  %-24s %s\n", entry.Name, entry.Description)
			}
		}
		fmt.Printf("\n%d tools\n", len(manifest))
		return nil
	},
}

// statsCmd prints per-table row counts
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStack(cfg)
		if err != nil {
			return err
		}
		defer st.close()

		stats, err := st.store.GetStats()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "Emit the manifest as JSON")
}
