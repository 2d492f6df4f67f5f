package identify

import (
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jennahamlin/mashwrapper/internal/sketchdb"
	"github.com/jennahamlin/mashwrapper/logger"

	"go.uber.org/zap/zapcore"
)

func TestMain(m *testing.M) {
	if err := logger.Init(zapcore.ErrorLevel); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeMash answers dist requests with canned hits and records the
// options of each invocation.
type fakeMash struct {
	params sketchdb.Params
	count  int
	hits   []sketchdb.Hit
	stderr string

	distCalls []sketchdb.DistOptions
	queries   []string
}

func (f *fakeMash) Info(sketch string) (sketchdb.Params, int, error) {
	return f.params, f.count, nil
}

func (f *fakeMash) Dist(db, query string, opts sketchdb.DistOptions) ([]sketchdb.Hit, string, error) {
	f.distCalls = append(f.distCalls, opts)
	f.queries = append(f.queries, query)
	return f.hits, f.stderr, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeGzip(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	f.Close()
	return path
}

func Test_identify_pairedReads(t *testing.T) {
	dir := t.TempDir()
	r1 := writeFile(t, dir, "iso_R1.fastq", "@r1\nACGT\n+\nIIII\n")
	r2 := writeGzip(t, dir, "iso_R2.fastq.gz", "@r2\nTGCA\n+\nIIII\n")

	mash := &fakeMash{
		params: sketchdb.Params{Kmer: 21, Size: 1000, Seed: 42},
		count:  3,
		hits: []sketchdb.Hit{
			{RefID: "Legionella_pneumophila_GCA_01.fna", Distance: 0.001, PValue: 1e-60, Shared: 950, Total: 1000},
			{RefID: "Legionella_anisa_GCA_02.fna", Distance: 0.03, PValue: 1e-10, Shared: 300, Total: 1000},
		},
		stderr: "Estimated genome size: 3.4e+06\nEstimated coverage: 30.5\n",
	}

	id := &Identifier{Mash: mash}
	outcome, err := id.Identify(Options{
		Database:        "refdb.msh",
		R1:              r1,
		R2:              r2,
		MaxDistance:     0.05,
		MinSharedHashes: 0.0,
		Threads:         2,
		OutDir:          dir,
	})
	if err != nil {
		t.Fatal(err)
	}

	if outcome.BestGenus != "Legionella" || outcome.BestSpecies != "pneumophila" {
		t.Errorf("call = %s %s", outcome.BestGenus, outcome.BestSpecies)
	}
	if outcome.Coverage != "30.5" || outcome.GenomeSize != "3.4e+06" {
		t.Errorf("estimates = %s / %s", outcome.GenomeSize, outcome.Coverage)
	}

	// coverage 30.5 / 3 = 10
	if outcome.MinKmer != 10 {
		t.Errorf("min k-mer copies = %d, want 10", outcome.MinKmer)
	}

	// probe run without -m, real run with the derived -m
	if len(mash.distCalls) != 2 {
		t.Fatalf("dist ran %d times, want probe + real", len(mash.distCalls))
	}
	if mash.distCalls[0].MinKmerCopies != 0 || !mash.distCalls[0].Reads {
		t.Errorf("probe options = %+v", mash.distCalls[0])
	}
	if mash.distCalls[1].MinKmerCopies != 10 {
		t.Errorf("real run options = %+v", mash.distCalls[1])
	}

	// both reads flow through one concatenated temp query
	if mash.queries[0] != mash.queries[1] {
		t.Errorf("probe and real runs used different queries: %v", mash.queries)
	}
	if _, err := os.Stat(mash.queries[0]); !os.IsNotExist(err) {
		t.Errorf("concatenated query %s was not cleaned up", mash.queries[0])
	}
}

func Test_identify_fastaSkipsReadFlags(t *testing.T) {
	dir := t.TempDir()
	query := writeFile(t, dir, "assembly.fna", ">contig1\nACGT\n")

	mash := &fakeMash{
		params: sketchdb.Params{Kmer: 21, Size: 1000, Seed: 42},
		count:  1,
		hits: []sketchdb.Hit{
			{RefID: "Legionella_longbeachae_GCA_03.fna", Distance: 0.002, PValue: 1e-40, Shared: 900, Total: 1000},
		},
	}

	id := &Identifier{Mash: mash}
	outcome, err := id.Identify(Options{
		Database:    "refdb.msh",
		R1:          query,
		MaxDistance: 0.05,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(mash.distCalls) != 1 {
		t.Fatalf("dist ran %d times, want 1 for an assembly query", len(mash.distCalls))
	}
	if mash.distCalls[0].Reads || mash.distCalls[0].MinKmerCopies != 0 {
		t.Errorf("assembly queries must not pass read flags: %+v", mash.distCalls[0])
	}
	if outcome.MinKmer != 0 {
		t.Errorf("min k-mer copies = %d, want 0 for an assembly", outcome.MinKmer)
	}
	if !strings.Contains(outcome.GenomeSize, "fasta") {
		t.Errorf("genome size = %q, want the fasta placeholder", outcome.GenomeSize)
	}
}

func Test_identify_noConfidentMatch(t *testing.T) {
	dir := t.TempDir()
	query := writeFile(t, dir, "assembly.fna", ">contig1\nACGT\n")

	mash := &fakeMash{
		params: sketchdb.Params{Kmer: 21, Size: 1000, Seed: 42},
		count:  2,
		hits: []sketchdb.Hit{
			{RefID: "Legionella_anisa_GCA_02.fna", Distance: 0.01, PValue: 1e-5, Shared: 40, Total: 1000},
		},
	}

	id := &Identifier{Mash: mash}
	outcome, err := id.Identify(Options{
		Database:        "refdb.msh",
		R1:              query,
		MaxDistance:     0.05,
		MinSharedHashes: 0.5,
		OutDir:          dir,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !outcome.NoMatch {
		t.Error("a hit below the shared-hash bound must yield no confident match")
	}
	if outcome.BestGenus != "" {
		t.Errorf("no species may be called, got %s", outcome.BestGenus)
	}

	report := readResults(t, dir)
	if !strings.Contains(report, "No confident species call") {
		t.Errorf("report missing the no-match statement:\n%s", report)
	}
}

func Test_identify_tieFlagged(t *testing.T) {
	query := writeFile(t, t.TempDir(), "assembly.fna", ">c\nACGT\n")

	mash := &fakeMash{
		params: sketchdb.Params{Kmer: 21, Size: 1000, Seed: 42},
		count:  2,
		hits: []sketchdb.Hit{
			{RefID: "Legionella_anisa_GCA_01.fna", Distance: 0.002, PValue: 1e-40, Shared: 900, Total: 1000},
			{RefID: "Legionella_parisiensis_GCA_02.fna", Distance: 0.002, PValue: 1e-41, Shared: 900, Total: 1000},
		},
	}

	id := &Identifier{Mash: mash}
	outcome, err := id.Identify(Options{Database: "refdb.msh", R1: query, MaxDistance: 0.05})
	if err != nil {
		t.Fatal(err)
	}

	if !outcome.Tie {
		t.Error("equal shared-hash counts on the two best hits must flag a tie")
	}
	if outcome.BestGenus != "" {
		t.Error("no single best species may be called on a tie")
	}
}

func Test_identify_emptyDatabase(t *testing.T) {
	query := writeFile(t, t.TempDir(), "assembly.fna", ">c\nACGT\n")

	mash := &fakeMash{params: sketchdb.Params{Kmer: 21}, count: 0}
	id := &Identifier{Mash: mash}

	_, err := id.Identify(Options{Database: "refdb.msh", R1: query})

	var empty *sketchdb.EmptyDatabaseError
	if !errors.As(err, &empty) {
		t.Fatalf("want EmptyDatabaseError, got %v", err)
	}
}

func Test_identify_badExtension(t *testing.T) {
	id := &Identifier{Mash: &fakeMash{}}

	_, err := id.Identify(Options{Database: "refdb.fasta", R1: "q.fna"})

	var input *InputError
	if !errors.As(err, &input) {
		t.Fatalf("want InputError for a non-.msh database, got %v", err)
	}
}

func Test_identify_badGzipInput(t *testing.T) {
	dir := t.TempDir()
	r1 := writeFile(t, dir, "iso_R1.fastq", "@r\nACGT\n+\nIIII\n")
	bad := writeFile(t, dir, "iso_R2.fastq.gz", "not gzip at all")

	mash := &fakeMash{params: sketchdb.Params{Kmer: 21}, count: 1}
	id := &Identifier{Mash: mash}

	_, err := id.Identify(Options{Database: "refdb.msh", R1: r1, R2: bad})

	var input *InputError
	if !errors.As(err, &input) {
		t.Fatalf("want InputError for a corrupt gzip read file, got %v", err)
	}
	if input.Path != bad {
		t.Errorf("error names %s, want %s", input.Path, bad)
	}
}

func Test_minKmerCopies(t *testing.T) {
	tests := []struct {
		coverage string
		override int
		want     int
	}{
		{"30.5", 0, 10},
		{"4.0", 0, 2},  // 4/3 floors below the minimum
		{"0.5", 0, 2},  // low coverage still uses the floor
		{"90", 0, 30},
		{"90", 5, 5},   // user override wins
		{"unknown", 0, 2},
	}

	for _, tt := range tests {
		if got := minKmerCopies(tt.coverage, tt.override); got != tt.want {
			t.Errorf("minKmerCopies(%q, %d) = %d, want %d", tt.coverage, tt.override, got, tt.want)
		}
	}
}

func Test_report_appendsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	query := writeFile(t, dir, "assembly.fna", ">c\nACGT\n")

	mash := &fakeMash{
		params: sketchdb.Params{Kmer: 21, Size: 1000, Seed: 42},
		count:  1,
		hits: []sketchdb.Hit{
			{RefID: "Legionella_pneumophila_GCA_01.fna", Distance: 0.001, PValue: 1e-60, Shared: 950, Total: 1000},
		},
	}
	id := &Identifier{Mash: mash}

	opts := Options{Database: "refdb.msh", R1: query, MaxDistance: 0.05, OutDir: dir}
	if _, err := id.Identify(opts); err != nil {
		t.Fatal(err)
	}
	if _, err := id.Identify(opts); err != nil {
		t.Fatal(err)
	}

	report := readResults(t, dir)
	if got := strings.Count(report, "Best species match: Legionella pneumophila"); got != 2 {
		t.Errorf("daily report holds %d runs, want 2", got)
	}

	runLog, err := os.ReadFile(filepath.Join(dir, "identify_runs.log"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(runLog)), "\n")
	if len(lines) != 2 {
		t.Fatalf("run log holds %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "outcome=match") || !strings.Contains(lines[0], "best=Legionella_pneumophila") {
		t.Errorf("run log line malformed: %s", lines[0])
	}

	// every run is separately identifiable
	if strings.Fields(lines[0])[0] == strings.Fields(lines[1])[0] {
		t.Error("run IDs must differ between runs")
	}
}

func readResults(t *testing.T, dir string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "Results_*.txt"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("want exactly one results file, got %v (%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
