package discovery

import (
	"math"
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/schemalens/schemalens/pkg/metadata"
)

// Match methods, ordered by strength. Exact beats suffix beats fuzzy when
// confidence ties.
const (
	MethodExact  = "exact"
	MethodSuffix = "suffix"
	MethodFuzzy  = "fuzzy"
)

// KindForeignKey is the relationship kind assigned to every inferred
// column-to-entity reference.
const KindForeignKey = "foreign_key"

// Confidence signal weights. Additive, capped at 1.0.
const (
	signalNameMatch  = 0.8
	signalFuzzyMatch = 0.6
	signalTargetPK   = 0.2
	signalTypeMatch  = 0.1
)

// Relationship is one inferred reference from a source column to a target
// entity. It is never persisted on its own; builders consume it immediately.
type Relationship struct {
	FromEntity string  `json:"from_entity"`
	FromColumn string  `json:"from_column"`
	ToEntity   string  `json:"to_entity"`
	ToColumn   string  `json:"to_column"`
	Kind       string  `json:"relationship_kind"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// Config tunes the discovery heuristics. The zero value is the standard
// deterministic configuration.
type Config struct {
	// Fuzzy enables Levenshtein name similarity as a fallback candidate
	// source for columns that match no entity exactly or by suffix.
	// Deterministic, but loosens the naming convention; off by default.
	Fuzzy bool

	// FuzzyMinSimilarity is the minimum normalized similarity for a fuzzy
	// candidate. Defaults to 0.85.
	FuzzyMinSimilarity float64
}

// Discover infers foreign-key-like relationships from entity metadata using
// the default configuration. Pure function of its input: the same entity set
// always yields the same relationships with the same confidence values.
func Discover(entities []metadata.Entity) []Relationship {
	return Config{}.Discover(entities)
}

// Discover infers relationships under this configuration. For every non-key
// column the candidate target entities are collected by exact name match,
// suffix-stripped match (ID/Code/Key), and optionally fuzzy similarity; only
// the single best-scoring candidate per column is kept.
func (c Config) Discover(entities []metadata.Entity) []Relationship {
	minSimilarity := c.FuzzyMinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = 0.85
	}

	index := make(map[string]metadata.Entity, len(entities))
	names := make([]string, 0, len(entities))
	for _, entity := range entities {
		index[strings.ToLower(entity.Name)] = entity
		names = append(names, entity.Name)
	}
	sort.Strings(names)

	var relationships []Relationship
	for _, entity := range entities {
		for _, column := range entity.Columns {
			if column.IsPrimaryKey {
				// Primary keys identify the row, they never reference one.
				continue
			}

			var candidates []Relationship
			if target, ok := index[strings.ToLower(column.Name)]; ok {
				candidates = append(candidates, score(entity, column, target, MethodExact, signalNameMatch))
			}
			if stripped := stripRefSuffix(column.Name); stripped != "" {
				if target, ok := index[strings.ToLower(stripped)]; ok {
					candidates = append(candidates, score(entity, column, target, MethodSuffix, signalNameMatch))
				}
			}
			if c.Fuzzy && len(candidates) == 0 {
				if target, ok := fuzzyTarget(column.Name, names, index, minSimilarity); ok {
					candidates = append(candidates, score(entity, column, target, MethodFuzzy, signalFuzzyMatch))
				}
			}

			if best, ok := bestCandidate(candidates); ok {
				relationships = append(relationships, best)
			}
		}
	}

	sort.Slice(relationships, func(i, j int) bool {
		a, b := relationships[i], relationships[j]
		if a.FromEntity != b.FromEntity {
			return a.FromEntity < b.FromEntity
		}
		return a.FromColumn < b.FromColumn
	})

	return relationships
}

// score builds a candidate relationship from a source column to a target
// entity. The target column defaults to the target's own name, matching the
// child-references-parent-by-name convention of the domain.
func score(from metadata.Entity, column metadata.Column, target metadata.Entity, method string, primary float64) Relationship {
	confidence := primary
	toColumn := target.Name

	if targetCol, ok := target.Column(toColumn); ok {
		if targetCol.IsPrimaryKey {
			confidence += signalTargetPK
		}
		if typesCompatible(column.DataType, targetCol.DataType) {
			confidence += signalTypeMatch
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return Relationship{
		FromEntity: from.Name,
		FromColumn: column.Name,
		ToEntity:   target.Name,
		ToColumn:   toColumn,
		Kind:       KindForeignKey,
		Method:     method,
		Confidence: confidence,
	}
}

// bestCandidate resolves ties: highest confidence wins, then the stronger
// method, then the lexicographically smallest target. Lower-confidence
// alternates are discarded.
func bestCandidate(candidates []Relationship) (Relationship, bool) {
	if len(candidates) == 0 {
		return Relationship{}, false
	}
	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if candidate.Confidence > best.Confidence {
			best = candidate
			continue
		}
		if candidate.Confidence < best.Confidence {
			continue
		}
		if methodRank(candidate.Method) < methodRank(best.Method) {
			best = candidate
			continue
		}
		if methodRank(candidate.Method) == methodRank(best.Method) && candidate.ToEntity < best.ToEntity {
			best = candidate
		}
	}
	return best, true
}

func methodRank(method string) int {
	switch method {
	case MethodExact:
		return 0
	case MethodSuffix:
		return 1
	default:
		return 2
	}
}

var refSuffixes = []string{"id", "code", "key"}

// stripRefSuffix removes a trailing ID/Code/Key marker from a column name.
// Returns "" when the name carries no marker or is nothing but the marker.
func stripRefSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range refSuffixes {
		if len(lower) > len(suffix) && strings.HasSuffix(lower, suffix) {
			return name[:len(name)-len(suffix)]
		}
	}
	return ""
}

// fuzzyTarget returns the closest entity by normalized Levenshtein similarity.
// Iteration over the sorted name list keeps the result independent of map order.
func fuzzyTarget(column string, names []string, index map[string]metadata.Entity, minSimilarity float64) (metadata.Entity, bool) {
	bestSimilarity := 0.0
	bestName := ""
	source := strings.ToLower(column)

	for _, name := range names {
		candidate := strings.ToLower(name)
		maxLen := math.Max(float64(len(source)), float64(len(candidate)))
		if maxLen == 0 {
			continue
		}
		distance := levenshtein.DistanceForStrings([]rune(source), []rune(candidate), levenshtein.DefaultOptions)
		similarity := 1.0 - float64(distance)/maxLen
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			bestName = name
		}
	}

	if bestSimilarity < minSimilarity || bestName == "" {
		return metadata.Entity{}, false
	}
	return index[strings.ToLower(bestName)], true
}

var typeGroups = []map[string]bool{
	{
		"varchar": true, "nvarchar": true, "char": true, "nchar": true,
		"text": true, "character varying": true, "string": true,
	},
	{
		"int": true, "integer": true, "bigint": true, "smallint": true,
		"tinyint": true,
	},
}

// typesCompatible reports whether two declared column types match exactly or
// belong to the same type family.
func typesCompatible(a, b string) bool {
	ta := strings.ToLower(strings.TrimSpace(a))
	tb := strings.ToLower(strings.TrimSpace(b))
	if ta == "" || tb == "" {
		return false
	}
	if ta == tb {
		return true
	}
	for _, group := range typeGroups {
		if group[ta] && group[tb] {
			return true
		}
	}
	return false
}
