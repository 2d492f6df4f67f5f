// Package collate gathers the artifacts of many runs into one place:
// combined results, combined run logs, and a unioned exclusion ledger.
package collate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jennahamlin/mashwrapper/internal/curate"
	"github.com/jennahamlin/mashwrapper/logger"

	"go.uber.org/zap"
)

// Inputs are the per-run artifacts to gather, grouped by kind.
type Inputs struct {
	// Results are daily identification reports (Results_*.txt)
	Results []string

	// RunLogs are identification run logs (identify_runs.log)
	RunLogs []string

	// AcquisitionLogs are curation batch logs
	AcquisitionLogs []string

	// Ledgers are excluded-genome ledgers to union
	Ledgers []string
}

// Outputs names the combined files that were written. A kind with no
// inputs writes nothing and leaves its field empty.
type Outputs struct {
	Results         string
	RunLogs         string
	AcquisitionLogs string
	Ledger          string
}

// Collect walks a directory tree and buckets every recognized artifact.
func Collect(root string) (Inputs, error) {
	var in Inputs

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		base := d.Name()
		switch {
		case strings.HasPrefix(base, "Results_") && strings.HasSuffix(base, ".txt"):
			in.Results = append(in.Results, path)
		case base == "identify_runs.log":
			in.RunLogs = append(in.RunLogs, path)
		case base == "acquisition.log":
			in.AcquisitionLogs = append(in.AcquisitionLogs, path)
		case base == "excluded_genomes.txt":
			in.Ledgers = append(in.Ledgers, path)
		}
		return nil
	})
	return in, err
}

// Run writes the combined artifacts into outDir.
func Run(in Inputs, outDir string) (Outputs, error) {
	var out Outputs

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return out, err
	}

	var err error
	if out.Results, err = concat(in.Results, outDir, "combined_results.txt"); err != nil {
		return out, err
	}
	if out.RunLogs, err = concat(in.RunLogs, outDir, "combined_identify_runs.log"); err != nil {
		return out, err
	}
	if out.AcquisitionLogs, err = concat(in.AcquisitionLogs, outDir, "combined_acquisition.log"); err != nil {
		return out, err
	}
	if out.Ledger, err = unionLedgers(in.Ledgers, outDir); err != nil {
		return out, err
	}

	logger.Info("collation finished",
		zap.Int("results", len(in.Results)),
		zap.Int("run_logs", len(in.RunLogs)),
		zap.Int("acquisition_logs", len(in.AcquisitionLogs)),
		zap.Int("ledgers", len(in.Ledgers)))
	return out, nil
}

// concat joins the files into one, newest content last, separated by a
// source marker line. Duplicate files (same base name from the same
// directory passed twice) are taken once.
func concat(paths []string, outDir, name string) (string, error) {
	paths = dedup(paths)
	if len(paths) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "==> %s <==\n", filepath.Base(path))
		b.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	out := filepath.Join(outDir, name)
	if err := os.WriteFile(out, []byte(b.String()), 0644); err != nil {
		return "", err
	}
	return out, nil
}

// unionLedgers merges the exclusion ledgers into one sorted,
// deduplicated excluded_genomes.txt.
func unionLedgers(paths []string, outDir string) (string, error) {
	paths = dedup(paths)
	if len(paths) == 0 {
		return "", nil
	}

	merged := curate.NewLedger()
	for _, path := range paths {
		ledger, err := curate.ReadLedgerFile(path)
		if err != nil {
			return "", err
		}
		merged.Merge(ledger)
	}

	out := filepath.Join(outDir, "excluded_genomes.txt")
	if err := merged.WriteFile(out); err != nil {
		return "", err
	}
	return out, nil
}

// dedup keeps one path per cleaned absolute form, preserving order.
func dedup(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	kept := make([]string, 0, len(paths))
	for _, path := range paths {
		key := filepath.Clean(path)
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, path)
	}
	sort.Strings(kept)
	return kept
}
