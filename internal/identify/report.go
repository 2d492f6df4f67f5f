package identify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"
)

// WriteReport appends the run's ranked table to the day's results file.
// Runs on the same day share one file so a plate of isolates collates
// into a single report.
func WriteReport(opts Options, outcome *Outcome) error {
	path := filepath.Join(opts.OutDir, resultsName(time.Now()))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString("Legionella Species ID Tool using Mash\n")
	fmt.Fprintf(&b, "Date and Time = %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Input query file(s): %s\n", outcome.Query)
	fmt.Fprintf(&b, "Database: %s\n", filepath.Base(opts.Database))
	fmt.Fprintf(&b, "Sketch parameters: %s\n", outcome.Params)
	fmt.Fprintf(&b, "Estimated genome size: %s\n", outcome.GenomeSize)
	fmt.Fprintf(&b, "Estimated coverage: %s\n", outcome.Coverage)
	if outcome.MinKmer > 0 {
		fmt.Fprintf(&b, "Minimum k-mer copies: %d\n", outcome.MinKmer)
	}
	b.WriteString("\n")

	switch {
	case outcome.NoMatch:
		fmt.Fprintf(&b, "No confident species call: no reference within distance %g with at least %g shared hashes.\n",
			opts.MaxDistance, opts.MinSharedHashes)
	case outcome.Tie:
		b.WriteString("Inconclusive: the two best hits share the same number of matching hashes.\n")
		b.WriteString("Flagged for review; no single best species is reported.\n")
	default:
		fmt.Fprintf(&b, "Best species match: %s %s\n", outcome.BestGenus, outcome.BestSpecies)
	}

	if len(outcome.Top) > 0 {
		b.WriteString("\n")
		w := tabwriter.NewWriter(&b, 0, 4, 3, ' ', 0)
		fmt.Fprintln(w, "Isolate\tMash Distance\t% Seq Sim\tP-value\tMatching Hashes")
		for _, c := range outcome.Top {
			fmt.Fprintf(w, "%s\t%g\t%.2f\t%g\t%d/%d\n",
				c.ID, c.Distance, c.SeqSimilarity(), c.PValue, c.Shared, c.Total)
		}
		w.Flush()
	}

	b.WriteString("\n" + strings.Repeat("-", 72) + "\n\n")

	_, err = f.WriteString(b.String())
	return err
}

// WriteRunLog appends one machine-parsable line per run, keyed by the
// run ID, so batch outcomes can be audited without parsing the report.
func WriteRunLog(opts Options, outcome *Outcome) error {
	path := filepath.Join(opts.OutDir, "identify_runs.log")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	out := "match"
	if outcome.NoMatch {
		out = "no-confident-match"
	} else if outcome.Tie {
		out = "tie"
	}

	best := "-"
	if outcome.BestGenus != "" {
		best = outcome.BestGenus + "_" + outcome.BestSpecies
	}

	_, err = fmt.Fprintf(f,
		"run_id=%s time=%s query=%q database=%s outcome=%s best=%s hits=%d min_kmer=%d\n",
		outcome.RunID,
		time.Now().Format(time.RFC3339),
		outcome.Query,
		filepath.Base(opts.Database),
		out,
		best,
		len(outcome.Top),
		outcome.MinKmer)
	return err
}

// resultsName is the shared daily report file name.
func resultsName(t time.Time) string {
	return fmt.Sprintf("Results_%s.txt", t.Format("2006-01-02"))
}
