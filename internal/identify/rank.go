package identify

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/jennahamlin/mashwrapper/internal/sketchdb"
)

// topN bounds the ranked report.
const topN = 5

// Candidate is one reference isolate's comparison against the query.
type Candidate struct {
	// ID is the isolate identifier, Genus_species_accession
	ID string

	// Genus, Species, Accession are the parsed-out ID parts
	Genus     string
	Species   string
	Accession string

	// Distance is the mash distance estimate
	Distance float64

	// PValue for the distance estimate
	PValue float64

	// SharedFrac is the shared-hash fraction
	SharedFrac float64

	// Shared and Total are the raw shared-hash counts
	Shared int
	Total  int
}

// SeqSimilarity is the percent sequence similarity, (1 - distance) * 100.
func (c Candidate) SeqSimilarity() float64 {
	return (1 - c.Distance) * 100
}

// newCandidate parses a dist hit's reference path into a candidate.
// Reference IDs are file paths whose base is the canonical isolate name
// (Genus_species_accession.fna).
func newCandidate(hit sketchdb.Hit) Candidate {
	id := filepath.Base(hit.RefID)
	id = strings.TrimSuffix(id, ".msh")
	id = strings.TrimSuffix(id, ".fna")
	id = strings.TrimSuffix(id, "_cleaned")

	c := Candidate{
		ID:         id,
		Distance:   hit.Distance,
		PValue:     hit.PValue,
		SharedFrac: hit.SharedFraction(),
		Shared:     hit.Shared,
		Total:      hit.Total,
	}

	// accessions carry underscores (GCA_...), so only the first two
	// separators split
	parts := strings.SplitN(id, "_", 3)
	if len(parts) == 3 {
		c.Genus, c.Species, c.Accession = parts[0], parts[1], parts[2]
	} else {
		c.Genus = id
	}

	return c
}

// Rank filters the candidates against both bounds and orders the
// survivors: ascending distance, then ascending p-value, then
// lexicographic isolate ID for determinism. At most topN are returned.
// Candidates failing either bound are excluded outright, not
// deprioritized.
func Rank(candidates []Candidate, maxDistance, minSharedHashes float64) []Candidate {
	passed := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Distance > maxDistance || c.SharedFrac < minSharedHashes {
			continue
		}
		passed = append(passed, c)
	}

	sort.Slice(passed, func(i, j int) bool {
		if passed[i].Distance != passed[j].Distance {
			return passed[i].Distance < passed[j].Distance
		}
		if passed[i].PValue != passed[j].PValue {
			return passed[i].PValue < passed[j].PValue
		}
		return passed[i].ID < passed[j].ID
	})

	if len(passed) > topN {
		passed = passed[:topN]
	}
	return passed
}

// isTie reports whether the two best hits share the same shared-hash
// count, in which case no single best species is called.
func isTie(ranked []Candidate) bool {
	return len(ranked) >= 2 && ranked[0].Shared == ranked[1].Shared
}
