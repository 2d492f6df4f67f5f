// Package sketchdb builds genomic sketches with mash and merges them
// into a single queryable reference database.
package sketchdb

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Params are the sketch parameters recorded in every sketch. Sketches
// pasted into one database must agree on Kmer and Size, and the query
// side inherits them from the database at comparison time.
type Params struct {
	Kmer int
	Size int
	Seed int
}

func (p Params) String() string {
	return fmt.Sprintf("k=%d sketch-size=%d seed=%d", p.Kmer, p.Size, p.Seed)
}

// Hit is one mash dist comparison: the query sketch against one
// reference sketch.
type Hit struct {
	// RefID is the reference sketch identifier (file path in the db)
	RefID string

	// QueryID is the query file name
	QueryID string

	// Distance is the mash distance estimate
	Distance float64

	// PValue for the distance estimate
	PValue float64

	// Shared is the matching hash count
	Shared int

	// Total is the sketch size the count is out of
	Total int
}

// SharedFraction is the shared-hash fraction (Shared/Total).
func (h Hit) SharedFraction() float64 {
	if h.Total == 0 {
		return 0
	}
	return float64(h.Shared) / float64(h.Total)
}

// runFunc executes the mash binary. Swapped out in tests.
type runFunc func(bin string, args ...string) (stdout, stderr []byte, err error)

func runCommand(bin string, args ...string) ([]byte, []byte, error) {
	cmd := exec.Command(bin, args...)

	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}

// Mash is a small utility object for executing mash.
type Mash struct {
	// Bin is the path to the mash binary
	Bin string

	run runFunc
}

// NewMash returns a wrapper shelling out to the binary at bin.
func NewMash(bin string) *Mash {
	return &Mash{Bin: bin, run: runCommand}
}

// Sketch sketches one sequence file and returns the .msh path.
func (m *Mash) Sketch(file string, p Params) (string, error) {
	out := file + ".msh"
	args := []string{
		"sketch",
		"-k", strconv.Itoa(p.Kmer),
		"-s", strconv.Itoa(p.Size),
		"-S", strconv.Itoa(p.Seed),
		"-o", strings.TrimSuffix(out, ".msh"),
		file,
	}

	if _, stderr, err := m.run(m.Bin, args...); err != nil {
		return "", fmt.Errorf("failed to sketch %s: %v: %s", file, err, stderr)
	}
	return out, nil
}

// Paste merges sketches into out (without the .msh suffix mash appends).
func (m *Mash) Paste(out string, sketches []string) error {
	args := append([]string{"paste", strings.TrimSuffix(out, ".msh")}, sketches...)
	if _, stderr, err := m.run(m.Bin, args...); err != nil {
		return fmt.Errorf("failed to paste %d sketches: %v: %s", len(sketches), err, stderr)
	}
	return nil
}

// Info probes a sketch (or database) for its parameters and the number
// of sketches it holds.
func (m *Mash) Info(sketch string) (Params, int, error) {
	stdout, stderr, err := m.run(m.Bin, "info", sketch)
	if err != nil {
		return Params{}, 0, fmt.Errorf("failed to read sketch info for %s: %v: %s", sketch, err, stderr)
	}
	return parseInfo(stdout)
}

// parseInfo reads the header of mash info output:
//
//	Header:
//	  Hash function (seed):          MurmurHash3_x64_128 (42)
//	  K-mer size:                    21 (64-bit hashes)
//	  Alphabet:                      ACGT (canonical)
//	  Target min-hashes per sketch:  1000
//	Sketches (3):
func parseInfo(out []byte) (Params, int, error) {
	var p Params
	count := 0

	for _, line := range strings.Split(string(out), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Hash function"):
			p.Seed = lastParenInt(trimmed)
		case strings.HasPrefix(trimmed, "K-mer size:"):
			p.Kmer = firstInt(strings.TrimPrefix(trimmed, "K-mer size:"))
		case strings.HasPrefix(trimmed, "Target min-hashes per sketch:"):
			p.Size = firstInt(strings.TrimPrefix(trimmed, "Target min-hashes per sketch:"))
		case strings.HasPrefix(trimmed, "Sketches ("):
			count = lastParenInt(trimmed)
		}
	}

	if p.Kmer == 0 || p.Size == 0 {
		return p, count, fmt.Errorf("failed to parse sketch parameters from mash info output")
	}
	return p, count, nil
}

// DistOptions tune a mash dist invocation.
type DistOptions struct {
	// Reads enables read-level sketching of the query (-r)
	Reads bool

	// MinKmerCopies is the minimum copies of each k-mer required (-m)
	MinKmerCopies int

	// Threads for the comparison (-p)
	Threads int
}

// Dist compares the query against every sketch in db. The raw stderr is
// returned too: with Reads set it carries the genome size and coverage
// estimates.
func (m *Mash) Dist(db, query string, opts DistOptions) ([]Hit, string, error) {
	args := []string{"dist"}
	if opts.Reads {
		args = append(args, "-r")
	}
	if opts.MinKmerCopies > 0 {
		args = append(args, "-m", strconv.Itoa(opts.MinKmerCopies))
	}
	if opts.Threads > 0 {
		args = append(args, "-p", strconv.Itoa(opts.Threads))
	}
	args = append(args, db, query)

	stdout, stderr, err := m.run(m.Bin, args...)
	if err != nil {
		return nil, string(stderr), fmt.Errorf("failed to run mash dist: %v: %s", err, stderr)
	}

	hits, err := parseDist(stdout)
	return hits, string(stderr), err
}

// parseDist reads the 5-column dist output:
// reference-ID, query-ID, distance, p-value, shared-hashes.
func parseDist(out []byte) (hits []Hit, err error) {
	for _, line := range strings.Split(string(out), "\n") {
		cols := strings.Fields(line)
		if len(cols) < 5 {
			continue
		}

		dist, err := strconv.ParseFloat(cols[2], 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse distance %q: %v", cols[2], err)
		}
		p, err := strconv.ParseFloat(cols[3], 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse p-value %q: %v", cols[3], err)
		}

		shared, total := 0, 0
		if parts := strings.SplitN(cols[4], "/", 2); len(parts) == 2 {
			shared, _ = strconv.Atoi(parts[0])
			total, _ = strconv.Atoi(parts[1])
		}

		hits = append(hits, Hit{
			RefID:    cols[0],
			QueryID:  cols[1],
			Distance: dist,
			PValue:   p,
			Shared:   shared,
			Total:    total,
		})
	}
	return hits, nil
}

// firstInt pulls the first integer token out of s.
func firstInt(s string) int {
	for _, f := range strings.Fields(s) {
		if n, err := strconv.Atoi(f); err == nil {
			return n
		}
	}
	return 0
}

// lastParenInt pulls the integer from the last "(N)" group in s.
func lastParenInt(s string) int {
	open := strings.LastIndex(s, "(")
	end := strings.LastIndex(s, ")")
	if open < 0 || end <= open {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(s[open+1 : end]))
	return n
}
