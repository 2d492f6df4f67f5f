package identify

import (
	"errors"
	"log"
	"os"

	"github.com/jennahamlin/mashwrapper/config"
	"github.com/jennahamlin/mashwrapper/internal/sketchdb"
	"github.com/spf13/cobra"
)

var (
	// stderr is for logging to Stderr (without an annoying timestamp)
	stderr = log.New(os.Stderr, "", 0)
)

// RunCmd identifies the species of a query read set or assembly.
func RunCmd(cmd *cobra.Command, args []string) {
	conf := config.New()

	db, err := cmd.Flags().GetString("database")
	if db == "" || err != nil {
		cmd.Help()
		stderr.Fatal("no reference sketch database passed (-d)")
	}

	r1, _ := cmd.Flags().GetString("read1")
	r2, _ := cmd.Flags().GetString("read2")
	if r1 == "" {
		cmd.Help()
		stderr.Fatal("no query input passed (-r)")
	}
	if r2 != "" {
		if _, err := os.Stat(r2); err != nil {
			stderr.Fatalf("cannot read the second read file %s: %v", r2, err)
		}
	}
	if _, err := os.Stat(r1); err != nil {
		stderr.Fatalf("cannot read the query file %s: %v", r1, err)
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = conf.OutDir
	}

	id := &Identifier{Mash: sketchdb.NewMash(conf.Tools.Mash)}
	outcome, err := id.Identify(Options{
		Database:        db,
		R1:              r1,
		R2:              r2,
		MaxDistance:     conf.Identify.MaxDistance,
		MinSharedHashes: conf.Identify.MinSharedHashes,
		MinKmerCopies:   conf.Identify.MinKmerCopies,
		Threads:         conf.Identify.Threads,
		OutDir:          out,
	})
	if err != nil {
		var empty *sketchdb.EmptyDatabaseError
		var input *InputError
		switch {
		case errors.As(err, &empty):
			stderr.Fatalf("the reference database %s holds no sketches", db)
		case errors.As(err, &input):
			stderr.Fatalf("unusable query input: %v", input)
		default:
			stderr.Fatalf("identification failed: %v", err)
		}
	}

	switch {
	case outcome.NoMatch:
		stderr.Printf("no confident species match for %s", outcome.Query)
	case outcome.Tie:
		stderr.Printf("inconclusive result for %s, flagged for review", outcome.Query)
	default:
		stderr.Printf("%s identified as %s %s", outcome.Query, outcome.BestGenus, outcome.BestSpecies)
	}
}
