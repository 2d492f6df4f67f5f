// Package identify compares a query read set against a reference sketch
// database and calls the most likely species.
package identify

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jennahamlin/mashwrapper/internal/fasta"
	"github.com/jennahamlin/mashwrapper/internal/sketchdb"
	"github.com/jennahamlin/mashwrapper/logger"

	"go.uber.org/zap"
)

// InputError marks unusable query input (bad extension, failed
// decompression). Fatal for this identification run.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("query input %s is unusable: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// Options are one identification run's inputs.
type Options struct {
	// Database is the merged reference sketch database (.msh)
	Database string

	// R1 and R2 are the paired read files; leave R2 empty for a
	// single-FASTA query
	R1 string
	R2 string

	// MaxDistance is the largest distance reported as a match
	MaxDistance float64

	// MinSharedHashes is the smallest shared-hash fraction reported
	MinSharedHashes float64

	// MinKmerCopies overrides the coverage-derived -m value when > 0
	MinKmerCopies int

	// Threads for the comparison
	Threads int

	// OutDir receives the results file and run log
	OutDir string
}

// Outcome is one finished identification run.
type Outcome struct {
	// RunID ties the report and log lines back to this invocation
	RunID string

	// Query names the file(s) tested
	Query string

	// Params were derived from the database, not assumed
	Params sketchdb.Params

	// GenomeSize and Coverage are mash's estimates for read input
	GenomeSize string
	Coverage   string

	// MinKmer is the -m value used (0 for FASTA queries)
	MinKmer int

	// NoMatch is set when nothing passed both bounds
	NoMatch bool

	// Tie is set when the two best hits cannot be separated
	Tie bool

	// BestGenus and BestSpecies are the species call, empty on NoMatch
	BestGenus   string
	BestSpecies string

	// Top holds the ranked hits, at most five
	Top []Candidate
}

// masher is the slice of the mash wrapper identification needs.
type masher interface {
	Info(sketch string) (sketchdb.Params, int, error)
	Dist(db, query string, opts sketchdb.DistOptions) ([]sketchdb.Hit, string, error)
}

// Identifier runs identifications against one database.
type Identifier struct {
	Mash masher
}

// Identify runs the comparison and writes the report and run log.
func (id *Identifier) Identify(opts Options) (*Outcome, error) {
	if err := sketchdb.ValidateExt(opts.Database); err != nil {
		return nil, &InputError{Path: opts.Database, Err: err}
	}

	// derive the sketch parameters from the database so identification
	// works against databases built at any sketch size
	params, count, err := id.Mash.Info(opts.Database)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, &sketchdb.EmptyDatabaseError{}
	}

	outcome := &Outcome{
		RunID:      uuid.NewString(),
		Params:     params,
		GenomeSize: "N/A - input was fasta",
		Coverage:   "N/A - input was fasta",
	}

	var hits []sketchdb.Hit
	if opts.R2 != "" {
		outcome.Query = filepath.Base(opts.R1) + " and " + filepath.Base(opts.R2)
		hits, err = id.distReads(opts, outcome)
	} else {
		outcome.Query = filepath.Base(opts.R1)
		hits, _, err = id.Mash.Dist(opts.Database, opts.R1, sketchdb.DistOptions{Threads: opts.Threads})
	}
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, newCandidate(hit))
	}

	outcome.Top = Rank(candidates, opts.MaxDistance, opts.MinSharedHashes)
	switch {
	case len(outcome.Top) == 0:
		outcome.NoMatch = true
	case isTie(outcome.Top):
		outcome.Tie = true
	default:
		outcome.BestGenus = outcome.Top[0].Genus
		outcome.BestSpecies = outcome.Top[0].Species
	}

	logger.Info("identification finished",
		zap.String("run_id", outcome.RunID),
		zap.String("query", outcome.Query),
		zap.Bool("no_confident_match", outcome.NoMatch),
		zap.Int("hits", len(outcome.Top)))

	if opts.OutDir != "" {
		if err := WriteReport(opts, outcome); err != nil {
			return nil, err
		}
		if err := WriteRunLog(opts, outcome); err != nil {
			return nil, err
		}
	}

	return outcome, nil
}

// distReads concatenates the read pair (decompressing as needed), runs
// a probe dist for the genome size and coverage estimates, derives the
// -m bound, and runs the real comparison.
func (id *Identifier) distReads(opts Options, outcome *Outcome) ([]sketchdb.Hit, error) {
	catFile, err := concatReads(opts.R1, opts.R2)
	if err != nil {
		return nil, err
	}
	defer os.Remove(catFile)

	// probe run: mash prints the size and coverage estimates on stderr
	_, stderrText, err := id.Mash.Dist(opts.Database, catFile, sketchdb.DistOptions{
		Reads:   true,
		Threads: opts.Threads,
	})
	if err != nil {
		return nil, err
	}

	outcome.GenomeSize, outcome.Coverage = parseEstimates(stderrText)
	outcome.MinKmer = minKmerCopies(outcome.Coverage, opts.MinKmerCopies)

	hits, _, err := id.Mash.Dist(opts.Database, catFile, sketchdb.DistOptions{
		Reads:         true,
		MinKmerCopies: outcome.MinKmer,
		Threads:       opts.Threads,
	})
	return hits, err
}

// concatReads merges the pair into one temp file, decompressing gzip
// inputs. Both reads feed one sketch, matching how the references were
// sketched from whole genomes.
func concatReads(r1, r2 string) (string, error) {
	out, err := os.CreateTemp("", "reads-cat-*.fastq")
	if err != nil {
		return "", err
	}

	for _, path := range []string{r1, r2} {
		in, err := fasta.Open(path)
		if err != nil {
			out.Close()
			os.Remove(out.Name())
			return "", &InputError{Path: path, Err: err}
		}
		if _, err := io.Copy(out, in); err != nil {
			in.Close()
			out.Close()
			os.Remove(out.Name())
			return "", &InputError{Path: path, Err: err}
		}
		in.Close()
	}

	if err := out.Close(); err != nil {
		return "", err
	}
	return out.Name(), nil
}

// parseEstimates pulls the genome size and coverage estimates off mash
// dist -r stderr.
func parseEstimates(stderrText string) (size, coverage string) {
	size, coverage = "unknown", "unknown"
	for _, line := range strings.Split(stderrText, "\n") {
		trimmed := strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(trimmed, "Estimated genome size:"); ok {
			size = strings.TrimSpace(v)
		}
		if v, ok := strings.CutPrefix(trimmed, "Estimated coverage:"); ok {
			coverage = strings.TrimSpace(v)
		}
	}
	return size, coverage
}

// minKmerCopies picks the -m value: the user's override when given,
// otherwise a third of the estimated coverage, floored at 2.
func minKmerCopies(coverage string, override int) int {
	if override > 0 {
		return override
	}

	cov, err := strconv.ParseFloat(coverage, 64)
	if err != nil {
		return 2
	}

	m := int(cov / 3)
	if m < 2 {
		m = 2
	}
	return m
}
