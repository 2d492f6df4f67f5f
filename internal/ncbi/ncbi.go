// Package ncbi wraps the NCBI "datasets" CLI: assembly metadata lookup
// and genome downloads for a requested taxon.
package ncbi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// AssemblyRecord is one candidate genome, parsed once from the remote
// repository's metadata and then filtered as a typed value.
type AssemblyRecord struct {
	// Accession is the primary (GenBank, GCA_*) accession
	Accession string

	// PairedAccession is the RefSeq equivalent, empty when absent
	PairedAccession string

	// Organism is the free-text organism name, strain markers included
	Organism string

	// TaxCheckOK is whether the source's taxonomy check passed
	TaxCheckOK bool

	// Completeness is the CheckM completeness percentage, nil when the
	// source carries no estimate
	Completeness *float64

	// Contamination is the CheckM contamination estimate, nil when absent
	Contamination *float64

	// Level is the assembly level tier (complete, chromosome, scaffold, contig)
	Level string
}

// NotFoundError is returned when the remote repository does not
// recognize the requested organism name. Terminal for that organism,
// never for its siblings.
type NotFoundError struct {
	Taxon string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("organism %q was not found in the assembly repository", e.Taxon)
}

// runFunc executes the datasets binary. Swapped out in tests.
type runFunc func(bin string, args ...string) (stdout, stderr []byte, err error)

func runCommand(bin string, args ...string) ([]byte, []byte, error) {
	cmd := exec.Command(bin, args...)

	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}

// Client drives the datasets CLI.
type Client struct {
	// Bin is the path to the datasets binary
	Bin string

	run runFunc
}

// NewClient returns a client shelling out to the binary at bin.
func NewClient(bin string) *Client {
	return &Client{Bin: bin, run: runCommand}
}

// summaryLine mirrors the JSON-lines assembly report emitted by
// "datasets summary genome taxon ... --as-json-lines".
type summaryLine struct {
	Accession       string `json:"accession"`
	PairedAccession string `json:"paired_accession"`
	Organism        struct {
		OrganismName string `json:"organism_name"`
	} `json:"organism"`
	AssemblyInfo struct {
		AssemblyLevel string `json:"assembly_level"`
	} `json:"assembly_info"`
	CheckmInfo struct {
		Completeness  *float64 `json:"completeness"`
		Contamination *float64 `json:"contamination"`
	} `json:"checkm_info"`
	ANI struct {
		TaxonomyCheckStatus string `json:"taxonomy_check_status"`
	} `json:"average_nucleotide_identity"`
}

// Summary fetches the assembly report for taxon, optionally restricted
// to the named assembly levels, and parses it into AssemblyRecords.
// Returns NotFoundError when the repository does not know the taxon;
// an empty slice (no error) when the taxon exists but no assembly
// matches the level restriction.
func (c *Client) Summary(taxon string, levels []string) ([]AssemblyRecord, error) {
	args := []string{"summary", "genome", "taxon", taxon, "--as-json-lines"}
	if len(levels) > 0 {
		args = append(args, "--assembly-level", strings.Join(levels, ","))
	}

	stdout, stderr, err := c.run(c.Bin, args...)
	if err != nil {
		msg := strings.ToLower(string(stderr))
		if strings.Contains(msg, "not found") || strings.Contains(msg, "no valid taxon") {
			return nil, &NotFoundError{Taxon: taxon}
		}
		return nil, fmt.Errorf("failed to fetch the assembly report for %q: %v: %s", taxon, err, stderr)
	}

	return parseSummary(stdout)
}

// parseSummary reads the JSON-lines report into typed records.
func parseSummary(report []byte) (records []AssemblyRecord, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(report))
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}

		var s summaryLine
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			return nil, fmt.Errorf("failed to parse assembly report line: %v", err)
		}

		records = append(records, AssemblyRecord{
			Accession:       s.Accession,
			PairedAccession: s.PairedAccession,
			Organism:        s.Organism.OrganismName,
			TaxCheckOK:      strings.EqualFold(s.ANI.TaxonomyCheckStatus, "OK"),
			Completeness:    s.CheckmInfo.Completeness,
			Contamination:   s.CheckmInfo.Contamination,
			Level:           normalizeLevel(s.AssemblyInfo.AssemblyLevel),
		})
	}

	return records, scanner.Err()
}

// normalizeLevel maps the report's level strings ("Complete Genome",
// "Chromosome", ...) onto the tier names used in requests.
func normalizeLevel(level string) string {
	l := strings.ToLower(strings.TrimSpace(level))
	if strings.HasPrefix(l, "complete") {
		return "complete"
	}
	return l
}

// Download fetches the genome bundle for the accessions into destZip.
func (c *Client) Download(accessions []string, destZip string) error {
	if len(accessions) == 0 {
		return fmt.Errorf("no accessions to download")
	}

	args := []string{"download", "genome", "accession"}
	args = append(args, accessions...)
	args = append(args, "--include", "genome", "--filename", destZip)

	if _, stderr, err := c.run(c.Bin, args...); err != nil {
		return fmt.Errorf("failed to download %d genomes: %v: %s", len(accessions), err, stderr)
	}

	return nil
}
