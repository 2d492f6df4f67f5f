package cmd

import (
	"github.com/jennahamlin/mashwrapper/internal/curate"
	"github.com/spf13/cobra"
)

// curateCmd downloads and cleans reference genomes for a list of organisms
var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Download and curate reference genomes from NCBI",
	Long: `Reads a list of organisms, downloads their assemblies from NCBI,
and curates them into per-organism reference sets

Assemblies failing the taxonomy check, named uncultured, or below the
completeness threshold are excluded and recorded in the exclusion ledger.
Plasmid records are stripped and each isolate's contigs are consolidated
into one renamed sequence file`,
	Run: curate.RunCmd,
}

// checkCmd validates an organism list before a curation run
var checkCmd = &cobra.Command{
	Use:   "check [organism list]",
	Short: "Validate an organism list file",
	Long: `Checks that an organism list is usable: the file exists, is not
empty, is not comma or tab delimited, and holds at most a genus and
species per line`,
	Run: curate.CheckCmd,
}

// set flags
func init() {
	RootCmd.AddCommand(curateCmd)
	RootCmd.AddCommand(checkCmd)

	curateCmd.Flags().StringP("in", "i", "", "Input organism list, one organism per line")
	curateCmd.Flags().StringSliceP("assembly-level", "l", nil, "Comma separated assembly levels to download (complete,chromosome,scaffold,contig)")
}
