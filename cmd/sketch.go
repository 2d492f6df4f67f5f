package cmd

import (
	"github.com/jennahamlin/mashwrapper/internal/sketchdb"
	"github.com/spf13/cobra"
)

// sketchCmd groups the sketch database operations
var sketchCmd = &cobra.Command{
	Use:   "sketch [build,merge]",
	Short: "Build and merge Mash sketches of curated genomes",
}

// sketchBuildCmd sketches every curated sequence file in a directory
var sketchBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Sketch each curated sequence file in a directory",
	Long: `Builds one Mash sketch per curated sequence file using the
configured k-mer size, sketch size, and hash seed

No-data marker files pass through untouched so a later merge can
account for organisms with nothing to sketch`,
	Run: sketchdb.BuildCmd,
}

// sketchMergeCmd pastes sketches into one reference database
var sketchMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge sketches into one reference database",
	Long: `Pastes every sketch in a directory into a single reference
database named with a generation timestamp

Merging fails before anything is written if the sketches disagree on
their k-mer size or sketch size, or if no usable sketch exists`,
	Run: sketchdb.MergeCmd,
}

// set flags
func init() {
	sketchCmd.AddCommand(sketchBuildCmd)
	sketchCmd.AddCommand(sketchMergeCmd)

	RootCmd.AddCommand(sketchCmd)

	sketchBuildCmd.Flags().StringP("in", "i", "", "Directory of curated sequence files <FASTA>")
	sketchMergeCmd.Flags().StringP("in", "i", "", "Directory of sketches to merge <.msh>")
}
