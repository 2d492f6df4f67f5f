package curate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jennahamlin/mashwrapper/logger"

	"go.uber.org/zap"
)

// BatchResult aggregates the per-organism outcomes of one curation
// batch. Failures are isolated per organism: one bad taxon never stops
// its siblings.
type BatchResult struct {
	// ID is the batch run identifier
	ID string

	// Results holds the organisms that completed (including no-data)
	Results []*Result

	// Failed maps a taxon to its terminal error
	Failed map[string]error

	// LedgerPath is the batch-level merged exclusion ledger
	LedgerPath string

	// SheetPath is the batch-level merged species sheet
	SheetPath string

	// CountsPath is the batch-level per-species isolate counts
	CountsPath string

	// AllDownloadDir holds a copy of every curated file in the batch
	AllDownloadDir string

	// LogPath is the machine-parsable acquisition log
	LogPath string

	// Totals is the catalog's view of the batch, set when a catalog
	// backed the run
	Totals *CatalogTotals
}

// CatalogTotals are the counts queried back out of the curation catalog
// after the batch, the cross-check against the file artifacts.
type CatalogTotals struct {
	Retained int
	Excluded int
	Species  map[string]int
}

// RunBatch curates every requested organism under outDir, one goroutine
// per organism. Units share no mutable state: each writes only its own
// organism directory, and the only aggregation happens after the join.
func (c *Curator) RunBatch(requests []Request, outDir string) (*BatchResult, error) {
	id := c.BatchID
	if id == "" {
		id = uuid.NewString()
	}
	batch := &BatchResult{
		ID:     id,
		Failed: map[string]error{},
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, req := range requests {
		wg.Add(1)
		go func(req Request) {
			defer wg.Done()

			res, err := c.Curate(req, filepath.Join(outDir, req.dirName()))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Failed[req.Taxon] = err
				logger.Error("organism failed",
					zap.String("organism", req.Taxon),
					zap.Error(err))
				return
			}
			batch.Results = append(batch.Results, res)
		}(req)
	}
	wg.Wait()

	// deterministic ordering after the concurrent phase
	sort.Slice(batch.Results, func(i, j int) bool {
		return batch.Results[i].Taxon < batch.Results[j].Taxon
	})

	if err := c.aggregate(batch, outDir); err != nil {
		return nil, err
	}

	return batch, nil
}

// aggregate copies curated files into allDownload, merges the ledgers
// and per-organism sheets into batch-level artifacts, and writes the
// acquisition log.
func (c *Curator) aggregate(batch *BatchResult, outDir string) error {
	batch.AllDownloadDir = filepath.Join(outDir, "allDownload")
	if err := os.MkdirAll(batch.AllDownloadDir, 0755); err != nil {
		return err
	}

	merged := NewLedger()
	combined := &Sheet{}
	for _, res := range batch.Results {
		merged.Merge(res.Ledger)

		if !res.NoData {
			base := filepath.Base(res.Dir)
			sheet, err := ReadSheetTSV(filepath.Join(res.Dir, base+"_species_sheet.tsv"))
			if err != nil {
				return err
			}
			combined.Merge(sheet)
		}

		for _, file := range res.CuratedFiles {
			if err := copyFile(file, filepath.Join(batch.AllDownloadDir, filepath.Base(file))); err != nil {
				return err
			}
		}
	}

	batch.LedgerPath = filepath.Join(outDir, "excluded_genomes.txt")
	if err := merged.WriteFile(batch.LedgerPath); err != nil {
		return err
	}

	batch.SheetPath = filepath.Join(outDir, "species_sheet.tsv")
	if err := combined.WriteTSV(batch.SheetPath); err != nil {
		return err
	}
	batch.CountsPath = filepath.Join(outDir, "isolate_counts.tsv")
	if err := combined.WriteCounts(batch.CountsPath); err != nil {
		return err
	}

	if c.Catalog != nil {
		if err := c.catalogTotals(batch, merged); err != nil {
			return err
		}
	}

	batch.LogPath = filepath.Join(outDir, "acquisition.log")
	return writeAcquisitionLog(batch)
}

// catalogTotals queries the batch back out of the curation catalog and
// cross-checks the exclusion count against the merged ledger.
func (c *Curator) catalogTotals(batch *BatchResult, merged *Ledger) error {
	retained, err := c.Catalog.Retained()
	if err != nil {
		return err
	}
	excluded, err := c.Catalog.ExclusionCount()
	if err != nil {
		return err
	}
	species, err := c.Catalog.SpeciesCounts()
	if err != nil {
		return err
	}

	batch.Totals = &CatalogTotals{
		Retained: len(retained),
		Excluded: excluded,
		Species:  species,
	}

	if excluded != merged.Len() {
		logger.Warn("catalog exclusions disagree with the batch ledger",
			zap.Int("catalog", excluded),
			zap.Int("ledger", merged.Len()))
	}
	return nil
}

// writeAcquisitionLog writes one key=value block per organism so the
// orchestration layer can detect each distinguishable outcome.
func writeAcquisitionLog(batch *BatchResult) error {
	f, err := os.Create(batch.LogPath)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "batch_id=%s\n", batch.ID)
	fmt.Fprintf(f, "time=%s\n", time.Now().Format("2006-01-02 15:04:05"))

	for _, res := range batch.Results {
		outcome := "curated"
		if res.NoData {
			outcome = "no-data"
		}
		fmt.Fprintf(f, "organism=%s outcome=%s curated=%d excluded=%d skipped=%d warnings=%d\n",
			res.Taxon, outcome, len(res.CuratedFiles), res.Ledger.Len(),
			len(res.SkippedFiles), len(res.Warnings))
		for _, w := range res.Warnings {
			fmt.Fprintf(f, "organism=%s warning=%q\n", res.Taxon, w)
		}
		for _, s := range res.SkippedFiles {
			fmt.Fprintf(f, "organism=%s mapping_error=%q\n", res.Taxon, s)
		}
	}

	failed := make([]string, 0, len(batch.Failed))
	for taxon := range batch.Failed {
		failed = append(failed, taxon)
	}
	sort.Strings(failed)
	for _, taxon := range failed {
		fmt.Fprintf(f, "organism=%s outcome=failed error=%q\n",
			taxon, strings.ReplaceAll(batch.Failed[taxon].Error(), "\n", " "))
	}

	if batch.Totals != nil {
		fmt.Fprintf(f, "catalog_retained=%d catalog_excluded=%d\n",
			batch.Totals.Retained, batch.Totals.Excluded)

		names := make([]string, 0, len(batch.Totals.Species))
		for name := range batch.Totals.Species {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(f, "species=%q retained=%d\n", name, batch.Totals.Species[name])
		}
	}

	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
