package cmd

import (
	"github.com/jennahamlin/mashwrapper/internal/collate"
	"github.com/spf13/cobra"
)

// collateCmd gathers artifacts of many runs into combined files
var collateCmd = &cobra.Command{
	Use:   "collate",
	Short: "Combine the artifacts of many runs",
	Long: `Walks a directory of finished runs and combines what it finds:
identification reports, run logs, acquisition logs, and the exclusion
ledgers, which are unioned into one sorted list`,
	Run: collate.RunCmd,
}

// set flags
func init() {
	RootCmd.AddCommand(collateCmd)

	collateCmd.Flags().StringP("in", "i", "", "Directory of finished runs to scan")
}
