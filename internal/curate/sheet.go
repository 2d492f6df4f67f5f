package curate

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jennahamlin/mashwrapper/internal/ncbi"
)

// sheetHeader is the single header row of the species sheet.
var sheetHeader = []string{"organism name", "genbank accession", "refseq accession"}

// Row is one normalized species-sheet record for a retained isolate.
type Row struct {
	Organism  string
	Accession string
	RefSeq    string
}

// Sheet is the tabular summary of every retained isolate. It doubles as
// the lookup table for the canonical rename.
type Sheet struct {
	rows []Row
}

// NewSheet builds a sheet from retained assembly records.
func NewSheet(records []ncbi.AssemblyRecord) *Sheet {
	s := &Sheet{}
	for _, rec := range records {
		s.rows = append(s.rows, Row{
			Organism:  rec.Organism,
			Accession: rec.Accession,
			RefSeq:    rec.PairedAccession,
		})
	}
	return s
}

// Rows returns the sheet rows, header excluded.
func (s *Sheet) Rows() []Row {
	return s.rows
}

// Len is the number of data rows.
func (s *Sheet) Len() int {
	return len(s.rows)
}

// ByAccession returns the row for the primary accession.
func (s *Sheet) ByAccession(accession string) (Row, bool) {
	for _, r := range s.rows {
		if r.Accession == accession {
			return r, true
		}
	}
	return Row{}, false
}

// Subtract removes every row whose accession appears in the ledger.
// Exclusions are applied before the sheet is finalized so the sheet and
// the curated files stay a bijection.
func (s *Sheet) Subtract(ledger *Ledger) {
	kept := s.rows[:0]
	for _, r := range s.rows {
		if !ledger.Has(r.Accession) {
			kept = append(kept, r)
		}
	}
	s.rows = kept
}

// Merge appends another sheet's rows, dropping duplicate accessions.
// Merging per-page downloads is where duplicate header rows came from in
// the text-stream pipeline; rows here are typed, so only accession
// duplicates remain to collapse.
func (s *Sheet) Merge(other *Sheet) {
	seen := map[string]bool{}
	for _, r := range s.rows {
		seen[r.Accession] = true
	}
	for _, r := range other.rows {
		if !seen[r.Accession] {
			s.rows = append(s.rows, r)
			seen[r.Accession] = true
		}
	}
}

// WriteTSV writes the sheet with its single header row.
func (s *Sheet) WriteTSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, strings.Join(sheetHeader, "\t"))
	for _, r := range s.rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Organism, r.Accession, r.RefSeq)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadSheetTSV parses a species sheet, collapsing any duplicate header
// rows introduced by concatenating per-page sheets.
func ReadSheetTSV(path string) (*Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &Sheet{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, sheetHeader[0]) {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < 2 {
			return nil, fmt.Errorf("failed to parse species sheet row %q", line)
		}
		row := Row{Organism: cols[0], Accession: cols[1]}
		if len(cols) > 2 {
			row.RefSeq = cols[2]
		}
		s.rows = append(s.rows, row)
	}

	return s, scanner.Err()
}

// SpeciesCount is the number of curated isolates for one species.
type SpeciesCount struct {
	Species string
	Count   int
}

// Counts tallies isolates per "Genus species", sorted by name.
func (s *Sheet) Counts() []SpeciesCount {
	tally := map[string]int{}
	for _, r := range s.rows {
		genus, species := splitOrganism(r.Organism)
		tally[genus+" "+species]++
	}

	names := make([]string, 0, len(tally))
	for n := range tally {
		names = append(names, n)
	}
	sort.Strings(names)

	counts := make([]SpeciesCount, 0, len(names))
	for _, n := range names {
		counts = append(counts, SpeciesCount{Species: n, Count: tally[n]})
	}
	return counts
}

// WriteCounts writes the per-species isolate counts with a trailing
// total line.
func (s *Sheet) WriteCounts(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	total := 0
	for _, c := range s.Counts() {
		fmt.Fprintf(w, "%s\t%d\n", c.Species, c.Count)
		total += c.Count
	}
	fmt.Fprintf(w, "total\t%d\n", total)

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// splitOrganism pulls the genus and species tokens out of a free-text
// organism name. "Legionella pneumophila str. Paris" yields
// ("Legionella", "pneumophila"); a genus-only name yields species "sp.".
func splitOrganism(organism string) (genus, species string) {
	fields := strings.Fields(organism)
	if len(fields) == 0 {
		return "", "sp."
	}

	genus = fields[0]
	species = "sp."
	if len(fields) > 1 && fields[1] != "sp." {
		species = fields[1]
	}
	return genus, species
}

// canonicalName is the deterministic curated file name for an isolate.
func canonicalName(organism, accession string) string {
	genus, species := splitOrganism(organism)
	return fmt.Sprintf("%s_%s_%s.fna", capitalize(genus), species, accession)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
