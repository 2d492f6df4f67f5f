package curate

import (
	"fmt"
	"strings"

	"github.com/jennahamlin/mashwrapper/internal/ncbi"
)

// Rule names the exclusion rule that removed an assembly.
type Rule string

const (
	// RuleTaxCheck marks assemblies whose source taxonomy check failed
	RuleTaxCheck = Rule("taxonomy-check-not-ok")

	// RuleUncultured marks assemblies from uncultured samples
	RuleUncultured = Rule("organism-name-uncultured")

	// RuleLowCompleteness marks assemblies below the completeness threshold
	RuleLowCompleteness = Rule("completeness-below-threshold")
)

// taxCheckNotOK excludes assemblies that failed the source's automated
// taxonomy validation.
func taxCheckNotOK(rec ncbi.AssemblyRecord) bool {
	return !rec.TaxCheckOK
}

// unculturedName excludes assemblies whose organism name carries the
// "uncultured" marker. Case-sensitive, as sourced.
func unculturedName(rec ncbi.AssemblyRecord) bool {
	return strings.Contains(rec.Organism, "uncultured")
}

// lowCompleteness excludes assemblies with a completeness estimate below
// min. The boundary is inclusive (exactly min is retained) and an absent
// estimate never excludes on its own.
func lowCompleteness(rec ncbi.AssemblyRecord, min float64) bool {
	return rec.Completeness != nil && *rec.Completeness < min
}

// Exclude applies the three exclusion predicates, OR-combined, and
// returns the first rule that fires.
func Exclude(rec ncbi.AssemblyRecord, minCompleteness float64) (Rule, bool) {
	switch {
	case taxCheckNotOK(rec):
		return RuleTaxCheck, true
	case unculturedName(rec):
		return RuleUncultured, true
	case lowCompleteness(rec, minCompleteness):
		return RuleLowCompleteness, true
	}
	return "", false
}

// Explain renders the human-readable reason an assembly was removed.
func Explain(rec ncbi.AssemblyRecord, rule Rule, minCompleteness float64) string {
	switch rule {
	case RuleTaxCheck:
		return fmt.Sprintf("%s: taxonomy check status is not OK", rec.Accession)
	case RuleUncultured:
		return fmt.Sprintf("%s: organism name %q contains \"uncultured\"", rec.Accession, rec.Organism)
	case RuleLowCompleteness:
		return fmt.Sprintf("%s: completeness %.2f is below the %.1f threshold", rec.Accession, *rec.Completeness, minCompleteness)
	}
	return fmt.Sprintf("%s: excluded", rec.Accession)
}
