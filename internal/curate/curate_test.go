package curate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/jennahamlin/mashwrapper/config"
	"github.com/jennahamlin/mashwrapper/internal/catalog"
	"github.com/jennahamlin/mashwrapper/internal/ncbi"
	"github.com/jennahamlin/mashwrapper/logger"

	"go.uber.org/zap/zapcore"
)

func TestMain(m *testing.M) {
	if err := logger.Init(zapcore.ErrorLevel); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeFetcher serves canned records and writes canned sequence files.
type fakeFetcher struct {
	records    []ncbi.AssemblyRecord
	summaryErr error

	// genomes maps accession -> file name -> FASTA content
	genomes map[string]map[string]string
}

func (f *fakeFetcher) Summary(taxon string, levels []string) ([]ncbi.AssemblyRecord, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	if len(levels) == 0 {
		return f.records, nil
	}

	var out []ncbi.AssemblyRecord
	for _, rec := range f.records {
		for _, l := range levels {
			if rec.Level == l {
				out = append(out, rec)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeFetcher) Fetch(accessions []string, destDir string) (map[string][]string, error) {
	files := map[string][]string{}
	for _, acc := range accessions {
		isolateDir := filepath.Join(destDir, acc)
		if err := os.MkdirAll(isolateDir, 0755); err != nil {
			return nil, err
		}
		for name, content := range f.genomes[acc] {
			path := filepath.Join(isolateDir, name)
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return nil, err
			}
			files[acc] = append(files[acc], path)
		}
		sort.Strings(files[acc])
	}
	return files, nil
}

func testCurator(f Fetcher) *Curator {
	return &Curator{
		Fetcher: f,
		Conf: &config.Config{
			Curate: config.CurateSettings{MinCompleteness: 93.0},
		},
	}
}

func defaultGenome(header string) map[string]string {
	return map[string]string{"genome.fna": ">" + header + "\nATGCATGC\n"}
}

// three assemblies, one failing the taxonomy check: two curated files
// and a one-entry ledger
func Test_curate_exclusionScenario(t *testing.T) {
	f := &fakeFetcher{
		records: []ncbi.AssemblyRecord{
			{Accession: "GCA_01", Organism: "Legionella pneumophila", TaxCheckOK: true, Completeness: floatPtr(99.0)},
			{Accession: "GCA_02", Organism: "Legionella pneumophila", TaxCheckOK: false, Completeness: floatPtr(99.0)},
			{Accession: "GCA_03", Organism: "Legionella pneumophila", TaxCheckOK: true},
		},
		genomes: map[string]map[string]string{
			"GCA_01": defaultGenome("chromosome 1"),
			"GCA_03": defaultGenome("chromosome 1"),
		},
	}

	res, err := testCurator(f).Curate(Request{Taxon: "legionella pneumophila"}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if len(res.CuratedFiles) != 2 {
		t.Errorf("curated %d files, want 2", len(res.CuratedFiles))
	}
	if res.Ledger.Len() != 1 || !res.Ledger.Has("GCA_02") {
		t.Errorf("ledger = %v, want exactly GCA_02", res.Ledger.Accessions())
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}

	// bijection: every sheet row maps to exactly one curated file
	if res.Sheet.Len() != len(res.CuratedFiles) {
		t.Errorf("sheet rows %d != curated files %d", res.Sheet.Len(), len(res.CuratedFiles))
	}
	for _, file := range res.CuratedFiles {
		base := filepath.Base(file)
		if base != "Legionella_pneumophila_GCA_01.fna" && base != "Legionella_pneumophila_GCA_03.fna" {
			t.Errorf("unexpected curated file name %s", base)
		}
	}
}

func Test_curate_notFoundIsTerminal(t *testing.T) {
	f := &fakeFetcher{summaryErr: &ncbi.NotFoundError{Taxon: "legionela"}}

	_, err := testCurator(f).Curate(Request{Taxon: "legionela"}, t.TempDir())

	var nf *ncbi.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want NotFoundError, got %v", err)
	}
}

func Test_curate_noDataMarkerAtLevel(t *testing.T) {
	f := &fakeFetcher{
		records: []ncbi.AssemblyRecord{
			{Accession: "GCA_01", Organism: "Legionella adelaidensis", TaxCheckOK: true, Level: "contig"},
		},
	}

	res, err := testCurator(f).Curate(
		Request{Taxon: "legionella adelaidensis", Levels: []string{"complete"}}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if !res.NoData {
		t.Fatal("want a no-data result when no assembly matches the level")
	}
	if _, err := os.Stat(res.MarkerPath); err != nil {
		t.Errorf("marker file missing: %v", err)
	}
	if !IsNoDataMarker(res.MarkerPath) {
		t.Errorf("marker name %s not detectable", res.MarkerPath)
	}
}

func Test_curate_emptyAfterFilter(t *testing.T) {
	f := &fakeFetcher{
		records: []ncbi.AssemblyRecord{
			{Accession: "GCA_01", Organism: "uncultured Legionella sp.", TaxCheckOK: true},
		},
	}

	_, err := testCurator(f).Curate(Request{Taxon: "legionella"}, t.TempDir())

	var empty *EmptySetError
	if !errors.As(err, &empty) {
		t.Fatalf("want EmptySetError, got %v", err)
	}
}

func Test_curate_plasmidRemoval(t *testing.T) {
	f := &fakeFetcher{
		records: []ncbi.AssemblyRecord{
			{Accession: "GCA_01", Organism: "Legionella pneumophila", TaxCheckOK: true},
			{Accession: "GCA_02", Organism: "Legionella pneumophila", TaxCheckOK: true},
		},
		genomes: map[string]map[string]string{
			"GCA_01": {
				"genome.fna": ">chromosome 1\nATGC\n>unnamed plasmid pLPP\nGGGG\n",
			},
			// pure plasmid: curated output must not exist at all
			"GCA_02": {
				"genome.fna": ">plasmid pLPE\nCCCC\n",
			},
		},
	}

	res, err := testCurator(f).Curate(Request{Taxon: "legionella pneumophila"}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if len(res.CuratedFiles) != 1 {
		t.Fatalf("curated %d files, want 1", len(res.CuratedFiles))
	}

	records, err := readFastaHeaders(res.CuratedFiles[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0] != "chromosome 1" {
		t.Errorf("plasmid record survived: %v", records)
	}

	// the pure-plasmid isolate's sheet row is gone too, keeping the bijection
	if res.Sheet.Len() != 1 {
		t.Errorf("sheet rows = %d, want 1", res.Sheet.Len())
	}
}

// multiple sequence files under one isolate consolidate into one
// curated file named for the isolate, avoiding cross-isolate collisions
func Test_curate_consolidation(t *testing.T) {
	f := &fakeFetcher{
		records: []ncbi.AssemblyRecord{
			{Accession: "GCA_01", Organism: "Legionella pneumophila", TaxCheckOK: true},
		},
		genomes: map[string]map[string]string{
			"GCA_01": {
				"chr1.fna": ">chromosome 1\nATGC\n",
				"chr2.fna": ">chromosome 2\nGGGG\n",
			},
		},
	}

	res, err := testCurator(f).Curate(Request{Taxon: "legionella pneumophila"}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if len(res.CuratedFiles) != 1 {
		t.Fatalf("curated %d files, want 1 consolidated file", len(res.CuratedFiles))
	}

	headers, err := readFastaHeaders(res.CuratedFiles[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(headers) != 2 {
		t.Errorf("consolidated file has %d records, want 2", len(headers))
	}
}

// a genus-only request drops isolates identified only to genus
func Test_curate_genusOnlyDropsSpDot(t *testing.T) {
	records := []ncbi.AssemblyRecord{
		{Accession: "GCA_01", Organism: "Legionella pneumophila", TaxCheckOK: true},
		{Accession: "GCA_02", Organism: "Legionella sp. RF31", TaxCheckOK: true},
	}
	genomes := map[string]map[string]string{
		"GCA_01": defaultGenome("chromosome 1"),
		"GCA_02": defaultGenome("chromosome 1"),
	}

	// genus-only request: sp. isolate dropped
	res, err := testCurator(&fakeFetcher{records: records, genomes: genomes}).
		Curate(Request{Taxon: "legionella"}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.CuratedFiles) != 1 {
		t.Fatalf("curated %d files, want 1 after the genus rule", len(res.CuratedFiles))
	}
	if filepath.Base(res.CuratedFiles[0]) != "Legionella_pneumophila_GCA_01.fna" {
		t.Errorf("wrong survivor: %s", res.CuratedFiles[0])
	}

	// species-level request: the rule does not apply
	res, err = testCurator(&fakeFetcher{records: records, genomes: genomes}).
		Curate(Request{Taxon: "legionella pneumophila"}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.CuratedFiles) != 2 {
		t.Errorf("species request curated %d files, want 2", len(res.CuratedFiles))
	}
}

// two runs over the same snapshot produce the same ledger and names
func Test_curate_idempotent(t *testing.T) {
	f := &fakeFetcher{
		records: []ncbi.AssemblyRecord{
			{Accession: "GCA_01", Organism: "Legionella pneumophila", TaxCheckOK: true},
			{Accession: "GCA_02", Organism: "Legionella pneumophila", TaxCheckOK: false},
			{Accession: "GCA_03", Organism: "Legionella pneumophila", TaxCheckOK: true, Completeness: floatPtr(50.0)},
		},
		genomes: map[string]map[string]string{
			"GCA_01": defaultGenome("chromosome 1"),
		},
	}

	first, err := testCurator(f).Curate(Request{Taxon: "legionella pneumophila"}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	second, err := testCurator(f).Curate(Request{Taxon: "legionella pneumophila"}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	a, b := first.Ledger.Accessions(), second.Ledger.Accessions()
	if len(a) != len(b) {
		t.Fatalf("ledger sizes differ: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("ledgers differ: %v vs %v", a, b)
		}
	}

	names := func(files []string) []string {
		out := make([]string, len(files))
		for i, f := range files {
			out[i] = filepath.Base(f)
		}
		sort.Strings(out)
		return out
	}
	na, nb := names(first.CuratedFiles), names(second.CuratedFiles)
	for i := range na {
		if na[i] != nb[i] {
			t.Fatalf("curated names differ: %v vs %v", na, nb)
		}
	}
}

func Test_runBatch_isolatesFailures(t *testing.T) {
	// the fetcher fails every organism, but the batch itself completes
	f := &fakeFetcher{summaryErr: &ncbi.NotFoundError{Taxon: "whatever"}}
	good := &fakeFetcher{
		records: []ncbi.AssemblyRecord{
			{Accession: "GCA_01", Organism: "Legionella pneumophila", TaxCheckOK: true},
		},
		genomes: map[string]map[string]string{"GCA_01": defaultGenome("chromosome 1")},
	}

	// route by taxon so one organism fails and one succeeds
	router := &routingFetcher{good: good, bad: f, badTaxon: "legionela"}

	out := t.TempDir()
	batch, err := testCurator(router).RunBatch([]Request{
		{Taxon: "legionella pneumophila"},
		{Taxon: "legionela"},
	}, out)
	if err != nil {
		t.Fatal(err)
	}

	if len(batch.Results) != 1 {
		t.Errorf("%d organisms completed, want 1", len(batch.Results))
	}
	if _, failed := batch.Failed["legionela"]; !failed {
		t.Error("the unknown organism should be in Failed")
	}

	// aggregation artifacts exist
	if _, err := os.Stat(batch.LedgerPath); err != nil {
		t.Errorf("batch ledger missing: %v", err)
	}
	if _, err := os.Stat(batch.LogPath); err != nil {
		t.Errorf("acquisition log missing: %v", err)
	}
	entries, err := os.ReadDir(batch.AllDownloadDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("allDownload has %d files, want 1", len(entries))
	}
}

// the batch root carries the merged species sheet and the per-species
// isolate counts alongside the ledger and allDownload
func Test_runBatch_writesBatchSheetAndCounts(t *testing.T) {
	fetchers := perTaxonFetcher{
		"legionella pneumophila": &fakeFetcher{
			records: []ncbi.AssemblyRecord{
				{Accession: "GCA_01", Organism: "Legionella pneumophila", TaxCheckOK: true},
			},
			genomes: map[string]map[string]string{"GCA_01": defaultGenome("chromosome 1")},
		},
		"legionella anisa": &fakeFetcher{
			records: []ncbi.AssemblyRecord{
				{Accession: "GCA_02", Organism: "Legionella anisa", TaxCheckOK: true},
			},
			genomes: map[string]map[string]string{"GCA_02": defaultGenome("chromosome 1")},
		},
	}

	out := t.TempDir()
	batch, err := testCurator(fetchers).RunBatch([]Request{
		{Taxon: "legionella pneumophila"},
		{Taxon: "legionella anisa"},
	}, out)
	if err != nil {
		t.Fatal(err)
	}

	sheet, err := os.ReadFile(batch.SheetPath)
	if err != nil {
		t.Fatalf("batch species sheet missing: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(sheet)), "\n")
	if len(lines) != 3 {
		t.Fatalf("batch sheet has %d lines, want header plus 2 rows:\n%s", len(lines), sheet)
	}
	if got := strings.Count(string(sheet), "organism name"); got != 1 {
		t.Errorf("batch sheet has %d header rows, want exactly 1", got)
	}
	if !strings.Contains(string(sheet), "GCA_01") || !strings.Contains(string(sheet), "GCA_02") {
		t.Errorf("batch sheet missing an organism's rows:\n%s", sheet)
	}

	counts, err := os.ReadFile(batch.CountsPath)
	if err != nil {
		t.Fatalf("batch isolate counts missing: %v", err)
	}
	for _, want := range []string{"Legionella anisa\t1", "Legionella pneumophila\t1", "total\t2"} {
		if !strings.Contains(string(counts), want) {
			t.Errorf("batch counts missing %q:\n%s", want, counts)
		}
	}
}

// an isolate the sheet cannot map is skipped, never deleted: its cleaned
// records survive under the accession name
func Test_curate_mappingGapKeepsData(t *testing.T) {
	f := &fakeFetcher{
		records: []ncbi.AssemblyRecord{
			{Accession: "GCA_01", Organism: "Legionella pneumophila", TaxCheckOK: true},
		},
		genomes: map[string]map[string]string{
			"GCA_01": defaultGenome("chromosome 1"),
			"GCA_99": {"genome.fna": ">chromosome 1\nTTTT\n>unnamed plasmid pX\nGGGG\n"},
		},
	}

	res, err := testCurator(&extraFetcher{fakeFetcher: f, extra: "GCA_99"}).
		Curate(Request{Taxon: "legionella pneumophila"}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if len(res.SkippedFiles) != 1 {
		t.Fatalf("skipped %d files, want 1", len(res.SkippedFiles))
	}
	skipped := res.SkippedFiles[0]
	if filepath.Base(skipped) != "GCA_99.fna" {
		t.Errorf("skipped file named %s, want the accession", filepath.Base(skipped))
	}

	// the skipped data exists on disk, cleaned but intact
	headers, err := readFastaHeaders(skipped)
	if err != nil {
		t.Fatalf("skipped isolate's data is gone: %v", err)
	}
	if len(headers) != 1 || headers[0] != "chromosome 1" {
		t.Errorf("skipped file records = %v, want the cleaned chromosome", headers)
	}

	// and it never counts as curated
	if len(res.CuratedFiles) != 1 {
		t.Errorf("curated %d files, want 1", len(res.CuratedFiles))
	}
}

// with a catalog attached, the batch queries its totals back out and
// records them in the acquisition log
func Test_runBatch_recordsCatalogTotals(t *testing.T) {
	cat, err := catalog.Open(":memory:", "batch-under-test")
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	f := &fakeFetcher{
		records: []ncbi.AssemblyRecord{
			{Accession: "GCA_01", Organism: "Legionella pneumophila", TaxCheckOK: true},
			{Accession: "GCA_02", Organism: "Legionella pneumophila", TaxCheckOK: false},
			{Accession: "GCA_03", Organism: "Legionella pneumophila", TaxCheckOK: true},
		},
		genomes: map[string]map[string]string{
			"GCA_01": defaultGenome("chromosome 1"),
			"GCA_03": defaultGenome("chromosome 1"),
		},
	}

	curator := testCurator(f)
	curator.Catalog = cat
	curator.BatchID = "batch-under-test"

	batch, err := curator.RunBatch([]Request{{Taxon: "legionella pneumophila"}}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if batch.Totals == nil {
		t.Fatal("catalog totals were never queried")
	}
	if batch.Totals.Retained != 2 || batch.Totals.Excluded != 1 {
		t.Errorf("totals = %d retained / %d excluded, want 2/1",
			batch.Totals.Retained, batch.Totals.Excluded)
	}
	if batch.Totals.Species["Legionella pneumophila"] != 2 {
		t.Errorf("species counts = %v, want 2 retained Legionella pneumophila", batch.Totals.Species)
	}

	log, err := os.ReadFile(batch.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(log), "catalog_retained=2 catalog_excluded=1") {
		t.Errorf("acquisition log missing the catalog totals:\n%s", log)
	}
	if !strings.Contains(string(log), `species="Legionella pneumophila" retained=2`) {
		t.Errorf("acquisition log missing the species tally:\n%s", log)
	}
}

// perTaxonFetcher routes each organism to its own canned fetcher.
type perTaxonFetcher map[string]*fakeFetcher

func (p perTaxonFetcher) Summary(taxon string, levels []string) ([]ncbi.AssemblyRecord, error) {
	f, ok := p[taxon]
	if !ok {
		return nil, &ncbi.NotFoundError{Taxon: taxon}
	}
	return f.Summary(taxon, levels)
}

func (p perTaxonFetcher) Fetch(accessions []string, destDir string) (map[string][]string, error) {
	for _, f := range p {
		if _, ok := f.genomes[accessions[0]]; ok {
			return f.Fetch(accessions, destDir)
		}
	}
	return nil, fmt.Errorf("no fetcher serves accession %s", accessions[0])
}

// extraFetcher returns one accession beyond what was asked for,
// simulating a download bundle the summary never named.
type extraFetcher struct {
	*fakeFetcher
	extra string
}

func (e *extraFetcher) Fetch(accessions []string, destDir string) (map[string][]string, error) {
	return e.fakeFetcher.Fetch(append(accessions, e.extra), destDir)
}

type routingFetcher struct {
	good, bad Fetcher
	badTaxon  string
}

func (r *routingFetcher) Summary(taxon string, levels []string) ([]ncbi.AssemblyRecord, error) {
	if taxon == r.badTaxon {
		return r.bad.Summary(taxon, levels)
	}
	return r.good.Summary(taxon, levels)
}

func (r *routingFetcher) Fetch(accessions []string, destDir string) (map[string][]string, error) {
	return r.good.Fetch(accessions, destDir)
}

func readFastaHeaders(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var headers []string
	for _, line := range splitLines(string(content)) {
		if len(line) > 0 && line[0] == '>' {
			headers = append(headers, line[1:])
		}
	}
	return headers, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
