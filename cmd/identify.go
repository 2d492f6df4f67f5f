package cmd

import (
	"github.com/jennahamlin/mashwrapper/internal/identify"
	"github.com/spf13/cobra"
)

// identifyCmd calls the closest species for a query isolate
var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Identify the species of a query isolate against a reference database",
	Long: `Compares a query read pair or assembly against a merged reference
sketch database and reports the best species match

Paired reads are concatenated and compared with read-aware distance
estimation; the minimum k-mer copy bound is derived from the estimated
coverage unless overridden. The top five hits are appended to the day's
results file`,
	Run: identify.RunCmd,
	Example: `  mashwrapper identify -d refdb-20240101-120000.msh -r iso_R1.fastq.gz -R iso_R2.fastq.gz
  mashwrapper identify -d refdb-20240101-120000.msh -r assembly.fna`,
}

// set flags
func init() {
	RootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().StringP("database", "d", "", "Reference sketch database <.msh>")
	identifyCmd.Flags().StringP("read1", "r", "", "Forward reads <FASTQ> or an assembly <FASTA>")
	identifyCmd.Flags().StringP("read2", "R", "", "Reverse reads <FASTQ>, omit for an assembly query")
}
