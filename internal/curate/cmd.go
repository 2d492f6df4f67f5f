package curate

import (
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jennahamlin/mashwrapper/config"
	"github.com/jennahamlin/mashwrapper/internal/catalog"
	"github.com/jennahamlin/mashwrapper/internal/ncbi"
	"github.com/jennahamlin/mashwrapper/logger"
	"github.com/spf13/cobra"

	"go.uber.org/zap"
)

var (
	// stderr is for logging to Stderr (without an annoying timestamp)
	stderr = log.New(os.Stderr, "", 0)
)

// RunCmd takes a cobra command (with its flags) and runs a curation batch.
func RunCmd(cmd *cobra.Command, args []string) {
	conf := config.New()

	in, err := cmd.Flags().GetString("in")
	if in == "" || err != nil {
		cmd.Help()
		stderr.Fatal("no organism list passed (-i)")
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = conf.OutDir
	}

	levels, _ := cmd.Flags().GetStringSlice("assembly-level")

	requests, err := ReadOrganismList(in, levels)
	if err != nil {
		stderr.Fatalf("failed to read the organism list: %v", err)
	}

	batchID := uuid.NewString()
	cat, err := catalog.Open(filepath.Join(out, "curation.db"), batchID)
	if err != nil {
		stderr.Fatalf("failed to open the curation catalog: %v", err)
	}
	defer cat.Close()

	curator := &Curator{
		Fetcher: NewFetcher(ncbi.NewClient(conf.Tools.Datasets)),
		Conf:    conf,
		Catalog: cat,
		BatchID: batchID,
	}

	batch, err := curator.RunBatch(requests, out)
	if err != nil {
		stderr.Fatalf("curation batch failed: %v", err)
	}

	logger.Info("curation batch finished",
		zap.String("batch_id", batch.ID),
		zap.Int("organisms", len(batch.Results)),
		zap.Int("failed", len(batch.Failed)),
		zap.String("log", batch.LogPath))

	// sibling failures never abort the batch, but a batch where nothing
	// succeeded is a failure the orchestrator must see
	if len(batch.Results) == 0 && len(batch.Failed) > 0 {
		stderr.Fatalf("every organism in the batch failed, see %s", batch.LogPath)
	}
}

// CheckCmd validates an organism list without running acquisition.
func CheckCmd(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		cmd.Help()
		stderr.Fatal("\nno organism list passed.")
	}

	if err := CheckOrganismList(args[0]); err != nil {
		stderr.Fatalf("ERROR: please check the organism list -> %v", err)
	}

	logger.Info("organism list is valid", zap.String("file", args[0]))
}
