package curate

import (
	"bufio"
	"fmt"
	"os"
	"sort"
)

// Ledger is the append-only, deduplicated set of excluded accessions.
// Entries keep the rule that removed them; the on-disk form is one
// accession per line so the orchestration layer can diff batches.
type Ledger struct {
	rules map[string]Rule
}

// NewLedger returns an empty exclusion ledger.
func NewLedger() *Ledger {
	return &Ledger{rules: map[string]Rule{}}
}

// Add records an excluded accession. Re-adding an accession is a no-op:
// the first rule to fire wins, which keeps repeat runs identical.
func (l *Ledger) Add(accession string, rule Rule) {
	if _, seen := l.rules[accession]; seen {
		return
	}
	l.rules[accession] = rule
}

// Has reports whether the accession was excluded.
func (l *Ledger) Has(accession string) bool {
	_, ok := l.rules[accession]
	return ok
}

// Rule returns the rule that excluded the accession.
func (l *Ledger) Rule(accession string) (Rule, bool) {
	r, ok := l.rules[accession]
	return r, ok
}

// Len is the number of excluded accessions.
func (l *Ledger) Len() int {
	return len(l.rules)
}

// Accessions returns the excluded accessions in sorted order, so two
// runs over the same snapshot serialize identically.
func (l *Ledger) Accessions() []string {
	accessions := make([]string, 0, len(l.rules))
	for a := range l.rules {
		accessions = append(accessions, a)
	}
	sort.Strings(accessions)
	return accessions
}

// Merge folds another ledger's entries into this one.
func (l *Ledger) Merge(other *Ledger) {
	for a, r := range other.rules {
		l.Add(a, r)
	}
}

// WriteFile writes the ledger, one accession per line.
func (l *Ledger) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, a := range l.Accessions() {
		if _, err := fmt.Fprintln(w, a); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadLedgerFile parses a one-accession-per-line ledger file. The rule
// attribution is not serialized, so entries read back as excluded
// without a rule.
func ReadLedgerFile(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	l := NewLedger()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if a := scanner.Text(); a != "" {
			l.Add(a, "")
		}
	}
	return l, scanner.Err()
}
