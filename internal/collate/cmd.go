package collate

import (
	"log"
	"os"

	"github.com/jennahamlin/mashwrapper/config"
	"github.com/spf13/cobra"
)

var (
	// stderr is for logging to Stderr (without an annoying timestamp)
	stderr = log.New(os.Stderr, "", 0)
)

// RunCmd gathers run artifacts under a directory into combined files.
func RunCmd(cmd *cobra.Command, args []string) {
	conf := config.New()

	in, err := cmd.Flags().GetString("in")
	if in == "" || err != nil {
		cmd.Help()
		stderr.Fatal("no run directory passed (-i)")
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = conf.OutDir
	}

	inputs, err := Collect(in)
	if err != nil {
		stderr.Fatalf("failed to scan %s: %v", in, err)
	}

	if len(inputs.Results)+len(inputs.RunLogs)+len(inputs.AcquisitionLogs)+len(inputs.Ledgers) == 0 {
		stderr.Fatalf("no run artifacts found under %s", in)
	}

	if _, err := Run(inputs, out); err != nil {
		stderr.Fatalf("failed to collate: %v", err)
	}
}
