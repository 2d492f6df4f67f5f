// Package fasta reads and writes FASTA files and applies the
// record-level cleaning rules used during genome curation.
package fasta

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one FASTA entry: its header line (without the leading '>')
// and its sequence lines, kept as read so writing is lossless.
type Record struct {
	Header string
	Lines  []string
}

// Open returns a reader for path, transparently decompressing gzip.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to decompress %s: %v", path, err)
		}
		return &gzipReadCloser{gz: gz, file: f}, nil
	}

	return f, nil
}

type gzipReadCloser struct {
	gz   *gzip.Reader
	file *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	if err := g.gz.Close(); err != nil {
		g.file.Close()
		return err
	}
	return g.file.Close()
}

// Read parses all records from r.
func Read(r io.Reader) (records []Record, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)

	var current *Record
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, ">") {
			if current != nil {
				records = append(records, *current)
			}
			current = &Record{Header: strings.TrimPrefix(line, ">")}
			continue
		}

		if current == nil {
			if strings.TrimSpace(line) == "" {
				continue // leading blank lines
			}
			return nil, fmt.Errorf("failed to parse FASTA: sequence before first header")
		}
		current.Lines = append(current.Lines, line)
	}
	if current != nil {
		records = append(records, *current)
	}

	return records, scanner.Err()
}

// ReadFile parses all records from the file at path (gzip or plain).
func ReadFile(path string) ([]Record, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return Read(r)
}

// Write writes records to w in the same layout they were read in.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := fmt.Fprintf(bw, ">%s\n", rec.Header); err != nil {
			return err
		}
		for _, line := range rec.Lines {
			if _, err := fmt.Fprintln(bw, line); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteFile writes records to path, replacing any existing file.
func WriteFile(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DropPlasmids removes every record whose header contains the token
// "plasmid". Matching is on the header line only, never the sequence.
// The returned count is the number of records dropped; a file whose
// records all drop is a pure-plasmid file and must be deleted by the
// caller (the zero-byte rule).
func DropPlasmids(records []Record) (kept []Record, dropped int) {
	for _, rec := range records {
		if strings.Contains(rec.Header, "plasmid") {
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	return kept, dropped
}
