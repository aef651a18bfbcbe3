package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"legmirror/pkg/sources"
	"legmirror/pkg/ui"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the legislatures legmirror can harvest",
	Run: func(cmd *cobra.Command, args []string) {
		for _, e := range sources.Entries() {
			seed := ""
			if e.Seedable {
				seed = ui.Dim(" [seedable]")
			}
			fmt.Printf("%s %s%s\n", ui.Cyan(fmt.Sprintf("%-12s", e.Name)), e.Description, seed)
			fmt.Printf("%s %s units, one call every %s\n", fmt.Sprintf("%-12s", ""), e.Kind, e.MinInterval)
		}
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
