package curate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadOrganismList parses the plain-text organism list: one taxon per
// line, either "genus" or "genus species". An embedded space is part of
// the taxon, never a field separator.
func ReadOrganismList(path string, levels []string) ([]Request, error) {
	if err := CheckOrganismList(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var requests []Request
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		taxon := strings.TrimSpace(scanner.Text())
		if taxon == "" {
			continue
		}
		requests = append(requests, Request{Taxon: taxon, Levels: levels})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(requests) == 0 {
		return nil, fmt.Errorf("organism list %s has no entries to process", path)
	}
	return requests, nil
}

// CheckOrganismList validates the list file the way the pipeline's
// sample-sheet checker always has: the file must exist and be
// non-empty, must not be a csv/tsv export, and each line must be at
// most "genus species" with no other delimiter.
func CheckOrganismList(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("organism list %s does not exist", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("organism list %s is empty, no entries to process", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return fmt.Errorf("organism list %s is not a plain text file: expected one organism per line, not %s", path, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.ContainsAny(line, ",;|:\t") {
			return fmt.Errorf("organism list line %d %q uses a delimiter other than a space", lineNo, line)
		}
		if len(strings.Fields(line)) > 2 {
			return fmt.Errorf("organism list line %d %q has more than a genus and species", lineNo, line)
		}
	}
	return scanner.Err()
}
