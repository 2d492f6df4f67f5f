// Package curate acquires candidate reference genomes for an organism,
// applies the exclusion policy, and emits one cleaned, canonically named
// sequence file per retained isolate.
package curate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jennahamlin/mashwrapper/config"
	"github.com/jennahamlin/mashwrapper/internal/catalog"
	"github.com/jennahamlin/mashwrapper/internal/fasta"
	"github.com/jennahamlin/mashwrapper/internal/ncbi"
	"github.com/jennahamlin/mashwrapper/logger"

	"go.uber.org/zap"
)

// Fetcher is the slice of the remote repository this package needs.
// The production implementation shells out to the datasets CLI; tests
// fake it.
type Fetcher interface {
	// Summary returns the assembly records for a taxon, optionally
	// restricted by assembly level
	Summary(taxon string, levels []string) ([]ncbi.AssemblyRecord, error)

	// Fetch downloads the genomes and unpacks one directory per
	// accession under destDir, returning the sequence files found
	Fetch(accessions []string, destDir string) (map[string][]string, error)
}

// repoFetcher implements Fetcher on the datasets CLI client.
type repoFetcher struct {
	client *ncbi.Client
}

// NewFetcher wraps an ncbi client in the Fetcher interface.
func NewFetcher(client *ncbi.Client) Fetcher {
	return &repoFetcher{client: client}
}

func (r *repoFetcher) Summary(taxon string, levels []string) ([]ncbi.AssemblyRecord, error) {
	return r.client.Summary(taxon, levels)
}

func (r *repoFetcher) Fetch(accessions []string, destDir string) (map[string][]string, error) {
	zipPath := filepath.Join(destDir, "genomes.zip")
	if err := r.client.Download(accessions, zipPath); err != nil {
		return nil, err
	}
	defer os.Remove(zipPath)

	return ncbi.Extract(zipPath, destDir)
}

// MappingError marks a curated file with no species-sheet row to rename
// it by. Logged and skipped, never fatal for the organism.
type MappingError struct {
	File string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("no species-sheet row maps the file %s to a canonical name", e.File)
}

// EmptySetError marks an organism whose every assembly was excluded.
type EmptySetError struct {
	Taxon string
}

func (e *EmptySetError) Error() string {
	return fmt.Sprintf("every assembly for %q was excluded by the curation policy", e.Taxon)
}

// Request is one organism to curate: a genus or "genus species" taxon,
// optionally restricted by assembly level.
type Request struct {
	Taxon  string
	Levels []string
}

// GenusOnly reports whether the request names a genus without a species.
func (r Request) GenusOnly() bool {
	return len(strings.Fields(r.Taxon)) < 2
}

// dirName is the request's on-disk directory name.
func (r Request) dirName() string {
	return strings.ReplaceAll(strings.TrimSpace(r.Taxon), " ", "_")
}

// Result is the outcome of curating one organism.
type Result struct {
	// Taxon the request named
	Taxon string

	// Dir is the per-organism output directory
	Dir string

	// CuratedFiles are the cleaned, canonically named sequence files
	CuratedFiles []string

	// Ledger holds the excluded accessions
	Ledger *Ledger

	// Sheet is the finalized species sheet
	Sheet *Sheet

	// NoData is set when an assembly-level filter matched nothing; a
	// marker file was written instead of curated output
	NoData bool

	// MarkerPath is the no-data marker file, when NoData is set
	MarkerPath string

	// Warnings are soft consistency findings (reported, never fatal)
	Warnings []string

	// SkippedFiles are files dropped for MappingError reasons
	SkippedFiles []string
}

// Curator drives acquisition and filtering for organisms.
type Curator struct {
	Fetcher Fetcher
	Conf    *config.Config

	// Catalog, when non-nil, records every assembly and exclusion
	Catalog *catalog.Catalog

	// BatchID, when set, names the batch; RunBatch generates one otherwise
	BatchID string
}

// Curate runs the full curation pipeline for one organism under dir.
// Errors are terminal for this organism only; the batch driver keeps
// sibling organisms running.
func (c *Curator) Curate(req Request, dir string) (*Result, error) {
	res := &Result{
		Taxon:  req.Taxon,
		Dir:    dir,
		Ledger: NewLedger(),
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	levels := req.Levels
	if len(levels) == 0 {
		levels = c.Conf.Curate.AssemblyLevels
	}

	records, err := c.Fetcher.Summary(req.Taxon, levels)
	if err != nil {
		return nil, err
	}

	// a level restriction that matches nothing is not an error: write a
	// marker so downstream stages skip this organism cleanly
	if len(records) == 0 && len(levels) > 0 {
		res.NoData = true
		res.MarkerPath = filepath.Join(dir, noDataMarkerName(req, levels))
		if err := os.WriteFile(res.MarkerPath, nil, 0644); err != nil {
			return nil, err
		}
		logger.Warn("no assemblies at the requested level",
			zap.String("organism", req.Taxon),
			zap.Strings("levels", levels))
		return res, nil
	}
	if len(records) == 0 {
		return nil, &ncbi.NotFoundError{Taxon: req.Taxon}
	}

	retained := c.applyPolicy(records, res.Ledger)
	if len(retained) == 0 {
		return nil, &EmptySetError{Taxon: req.Taxon}
	}

	res.Sheet = NewSheet(retained)
	res.Sheet.Subtract(res.Ledger)

	accessions := make([]string, 0, len(retained))
	for _, rec := range retained {
		accessions = append(accessions, rec.Accession)
	}

	isolates, err := c.Fetcher.Fetch(accessions, dir)
	if err != nil {
		return nil, err
	}

	if err := c.cleanIsolates(req, res, isolates); err != nil {
		return nil, err
	}

	if req.GenusOnly() {
		c.dropGenusOnlyIsolates(req, res)
	}

	if err := c.writeArtifacts(req, res, dir); err != nil {
		return nil, err
	}

	// soft post-condition: one curated file per sheet row
	if len(res.CuratedFiles) != res.Sheet.Len() {
		warning := fmt.Sprintf("curated file count %d does not match species-sheet row count %d",
			len(res.CuratedFiles), res.Sheet.Len())
		res.Warnings = append(res.Warnings, warning)
		logger.Warn("consistency check failed",
			zap.String("organism", req.Taxon),
			zap.String("detail", warning))
	}

	return res, nil
}

// applyPolicy runs the exclusion predicates over every record, filling
// the ledger and the catalog, and deleting nothing yet: records are
// excluded before download, so there is no on-disk data to remove.
func (c *Curator) applyPolicy(records []ncbi.AssemblyRecord, ledger *Ledger) (retained []ncbi.AssemblyRecord) {
	min := c.Conf.Curate.MinCompleteness

	for _, rec := range records {
		c.recordAssembly(rec)

		if rule, excluded := Exclude(rec, min); excluded {
			ledger.Add(rec.Accession, rule)
			c.recordExclusion(rec.Accession, rule)
			logger.Info("excluded assembly",
				zap.String("reason", Explain(rec, rule, min)))
			continue
		}
		retained = append(retained, rec)
	}

	return retained
}

// cleanIsolates applies the per-file rules: plasmid-record removal, the
// zero-byte rule, multi-file consolidation, and the canonical rename.
func (c *Curator) cleanIsolates(req Request, res *Result, isolates map[string][]string) error {
	accessions := make([]string, 0, len(isolates))
	for accession := range isolates {
		accessions = append(accessions, accession)
	}
	sort.Strings(accessions)

	for _, accession := range accessions {
		files := isolates[accession]
		isolateDir := filepath.Dir(files[0])

		var kept []fasta.Record
		for _, file := range files {
			records, err := fasta.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %v", file, err)
			}

			cleaned, dropped := fasta.DropPlasmids(records)
			if dropped > 0 {
				logger.Debug("dropped plasmid records",
					zap.String("file", filepath.Base(file)),
					zap.Int("dropped", dropped))
			}
			kept = append(kept, cleaned...)
		}

		// pure-plasmid isolate: nothing usable remains
		if len(kept) == 0 {
			logger.Warn("isolate is pure plasmid, removing",
				zap.String("accession", accession))
			res.dropSheetRow(accession)
			if err := os.RemoveAll(isolateDir); err != nil {
				return err
			}
			continue
		}

		// an unmapped isolate is skipped, never deleted: its cleaned
		// records are kept under the accession itself
		target := ""
		row, mapped := res.Sheet.ByAccession(accession)
		if mapped {
			target = filepath.Join(isolateDir, canonicalName(row.Organism, accession))
		} else {
			target = filepath.Join(isolateDir, accession+".fna")
			res.SkippedFiles = append(res.SkippedFiles, target)
			logger.Error("file mapping gap",
				zap.String("organism", req.Taxon),
				zap.Error(&MappingError{File: target}))
		}

		if err := fasta.WriteFile(target, kept); err != nil {
			return err
		}

		// consolidation: the originals are replaced by the one file above
		for _, file := range files {
			if file == target {
				continue
			}
			if err := os.Remove(file); err != nil {
				return err
			}
		}

		if mapped {
			res.CuratedFiles = append(res.CuratedFiles, target)
		}
	}

	return nil
}

// dropGenusOnlyIsolates removes isolates identified only to genus
// ("{Genus}_sp." names) from a genus-only request: they are not
// species-resolved. Species-level requests keep them.
func (c *Curator) dropGenusOnlyIsolates(req Request, res *Result) {
	genus := capitalize(strings.Fields(req.Taxon)[0])
	prefix := genus + "_sp._"

	kept := res.CuratedFiles[:0]
	for _, file := range res.CuratedFiles {
		if strings.HasPrefix(filepath.Base(file), prefix) {
			accession := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), prefix), ".fna")
			res.dropSheetRow(accession)
			os.Remove(file)
			logger.Info("dropped genus-level isolate",
				zap.String("organism", req.Taxon),
				zap.String("file", filepath.Base(file)))
			continue
		}
		kept = append(kept, file)
	}
	res.CuratedFiles = kept
}

// writeArtifacts writes the per-organism sheet, counts, and ledger.
func (c *Curator) writeArtifacts(req Request, res *Result, dir string) error {
	base := req.dirName()

	if err := res.Sheet.WriteTSV(filepath.Join(dir, base+"_species_sheet.tsv")); err != nil {
		return err
	}
	if err := res.Sheet.WriteCounts(filepath.Join(dir, base+"_isolate_counts.tsv")); err != nil {
		return err
	}
	return res.Ledger.WriteFile(filepath.Join(dir, "excluded_genomes.txt"))
}

func (r *Result) dropSheetRow(accession string) {
	kept := r.Sheet.rows[:0]
	for _, row := range r.Sheet.rows {
		if row.Accession != accession {
			kept = append(kept, row)
		}
	}
	r.Sheet.rows = kept
}

func (c *Curator) recordAssembly(rec ncbi.AssemblyRecord) {
	if c.Catalog == nil {
		return
	}
	err := c.Catalog.RecordAssembly(catalog.Assembly{
		Accession:       rec.Accession,
		RefSeqAccession: rec.PairedAccession,
		Organism:        rec.Organism,
		TaxCheckOK:      rec.TaxCheckOK,
		Completeness:    rec.Completeness,
		Contamination:   rec.Contamination,
		Level:           rec.Level,
	})
	if err != nil {
		logger.Warn("failed to record assembly in the catalog", zap.Error(err))
	}
}

func (c *Curator) recordExclusion(accession string, rule Rule) {
	if c.Catalog == nil {
		return
	}
	if err := c.Catalog.RecordExclusion(accession, string(rule)); err != nil {
		logger.Warn("failed to record exclusion in the catalog", zap.Error(err))
	}
}

// noDataMarkerName is the placeholder file name downstream stages use to
// detect a no-data organism without crashing.
func noDataMarkerName(req Request, levels []string) string {
	return fmt.Sprintf("%s-%s-noFNA.fna", req.dirName(), strings.Join(levels, "-"))
}

// IsNoDataMarker reports whether a file is a no-data placeholder.
func IsNoDataMarker(path string) bool {
	return strings.HasSuffix(filepath.Base(path), "-noFNA.fna")
}
