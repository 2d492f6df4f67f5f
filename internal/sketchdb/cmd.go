package sketchdb

import (
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/jennahamlin/mashwrapper/config"
	"github.com/jennahamlin/mashwrapper/logger"
	"github.com/spf13/cobra"

	"go.uber.org/zap"
)

var (
	// stderr is for logging to Stderr (without an annoying timestamp)
	stderr = log.New(os.Stderr, "", 0)
)

// BuildCmd sketches every curated sequence file in a directory.
func BuildCmd(cmd *cobra.Command, args []string) {
	conf := config.New()

	in, err := cmd.Flags().GetString("in")
	if in == "" || err != nil {
		cmd.Help()
		stderr.Fatal("no curated sequence directory passed (-i)")
	}

	b := &Builder{
		Mash: NewMash(conf.Tools.Mash),
		Params: Params{
			Kmer: conf.Sketch.Kmer,
			Size: conf.Sketch.Size,
			Seed: conf.Sketch.Seed,
		},
	}

	results, err := b.BuildDir(in)
	if err != nil {
		stderr.Fatalf("failed to build sketches: %v", err)
	}

	built, skipped := 0, 0
	for _, res := range results {
		if res.Status == StatusOK {
			built++
		} else {
			skipped++
		}
	}
	logger.Info("sketch build finished",
		zap.Int("built", built),
		zap.Int("no_data", skipped))
}

// MergeCmd pastes every sketch in a directory into one reference database.
func MergeCmd(cmd *cobra.Command, args []string) {
	conf := config.New()

	in, err := cmd.Flags().GetString("in")
	if in == "" || err != nil {
		cmd.Help()
		stderr.Fatal("no sketch directory passed (-i)")
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = conf.OutDir
	}

	sketches, err := filepath.Glob(filepath.Join(in, "*.msh"))
	if err != nil || len(sketches) == 0 {
		stderr.Fatalf("no sketches found under %s", in)
	}
	sort.Strings(sketches)

	results := make([]BuildResult, 0, len(sketches))
	for _, sketch := range sketches {
		results = append(results, BuildResult{Source: sketch, Sketch: sketch, Status: StatusOK})
	}

	b := &Builder{Mash: NewMash(conf.Tools.Mash)}
	db, err := b.Merge(results, out)
	if err != nil {
		stderr.Fatalf("failed to merge the reference database: %v", err)
	}

	logger.Info("reference database written", zap.String("database", db))
}
