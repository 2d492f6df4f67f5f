// Package catalog keeps the per-batch record of every assembly seen
// during curation and its disposition, in an embedded sqlite database.
// The TSV sheet and ledger files stay the interchange artifacts; the
// catalog is the queryable record for post-hoc review.
package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS assemblies (
	accession        TEXT PRIMARY KEY,
	refseq_accession TEXT,
	organism         TEXT NOT NULL,
	tax_check_ok     INTEGER NOT NULL,
	completeness     REAL,
	contamination    REAL,
	assembly_level   TEXT,
	batch_id         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS exclusions (
	accession TEXT PRIMARY KEY,
	rule      TEXT NOT NULL,
	batch_id  TEXT NOT NULL
);
`

// Assembly is one catalog row.
type Assembly struct {
	Accession       string
	RefSeqAccession string
	Organism        string
	TaxCheckOK      bool
	Completeness    *float64
	Contamination   *float64
	Level           string
}

// Catalog wraps the sqlite handle.
type Catalog struct {
	db      *sql.DB
	batchID string
}

// Open creates (or reopens) the catalog at path and ensures its schema.
// Use ":memory:" for an ephemeral catalog.
func Open(path, batchID string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open the curation catalog at %s: %v", path, err)
	}

	// sqlite allows one writer, and a second pooled connection to a
	// :memory: path would see a different database entirely
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create catalog tables: %v", err)
	}

	return &Catalog{db: db, batchID: batchID}, nil
}

// Close releases the sqlite handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordAssembly upserts one assembly record.
func (c *Catalog) RecordAssembly(a Assembly) error {
	_, err := c.db.Exec(`
		INSERT INTO assemblies
			(accession, refseq_accession, organism, tax_check_ok, completeness, contamination, assembly_level, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(accession) DO UPDATE SET
			refseq_accession = excluded.refseq_accession,
			organism         = excluded.organism,
			tax_check_ok     = excluded.tax_check_ok,
			completeness     = excluded.completeness,
			contamination    = excluded.contamination,
			assembly_level   = excluded.assembly_level,
			batch_id         = excluded.batch_id`,
		a.Accession, a.RefSeqAccession, a.Organism, a.TaxCheckOK,
		a.Completeness, a.Contamination, a.Level, c.batchID)
	return err
}

// RecordExclusion upserts one exclusion and the rule that fired.
func (c *Catalog) RecordExclusion(accession, rule string) error {
	_, err := c.db.Exec(`
		INSERT INTO exclusions (accession, rule, batch_id)
		VALUES (?, ?, ?)
		ON CONFLICT(accession) DO NOTHING`,
		accession, rule, c.batchID)
	return err
}

// Retained returns the assemblies that were not excluded, ordered by
// accession for stable output.
func (c *Catalog) Retained() ([]Assembly, error) {
	rows, err := c.db.Query(`
		SELECT a.accession, a.refseq_accession, a.organism, a.tax_check_ok,
		       a.completeness, a.contamination, a.assembly_level
		FROM assemblies a
		LEFT JOIN exclusions e ON e.accession = a.accession
		WHERE e.accession IS NULL
		ORDER BY a.accession`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assembly
	for rows.Next() {
		var a Assembly
		var refseq sql.NullString
		if err := rows.Scan(&a.Accession, &refseq, &a.Organism, &a.TaxCheckOK,
			&a.Completeness, &a.Contamination, &a.Level); err != nil {
			return nil, err
		}
		a.RefSeqAccession = refseq.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// ExclusionCount is the number of excluded accessions in this batch.
func (c *Catalog) ExclusionCount() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM exclusions WHERE batch_id = ?`, c.batchID).Scan(&n)
	return n, err
}

// SpeciesCounts tallies retained isolates per organism name.
func (c *Catalog) SpeciesCounts() (map[string]int, error) {
	rows, err := c.db.Query(`
		SELECT a.organism, COUNT(*)
		FROM assemblies a
		LEFT JOIN exclusions e ON e.accession = a.accession
		WHERE e.accession IS NULL
		GROUP BY a.organism`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var organism string
		var n int
		if err := rows.Scan(&organism, &n); err != nil {
			return nil, err
		}
		counts[organism] = n
	}
	return counts, rows.Err()
}
