package risk

import (
	"fmt"
	"math"
	"sort"

	cwerrors "chainwatch/internal/errors"
)

const (
	// WeightTolerance bounds |Σ weights - 1|.
	WeightTolerance = 1e-6
	// ScoreTolerance bounds rounding drift between the score, the
	// contributions and weight×severity.
	ScoreTolerance = 1e-3

	MinSeverity = 1
	MaxSeverity = 5
	MinScore    = 1.0
	MaxScore    = 5.0
)

type rawEntry struct {
	kind  FactorKind
	entry RawBreakdownEntry
}

// Validate checks a received aggregation and converts it into an
// AggregatedRisk. Structural problems are reported first, then in order:
// severity range, weight range, weight sum, per-entry contribution, score
// range and finally the score against the sum of contributions. Every
// violation is an *errors.InvalidAggregation naming the offending field.
func Validate(raw RawAggregation) (AggregatedRisk, error) {
	if raw.RiskScore == nil {
		return AggregatedRisk{}, invalid("risk_score", "missing")
	}
	score := *raw.RiskScore
	if !finite(score) {
		return AggregatedRisk{}, invalid("risk_score", "not a finite number")
	}
	if raw.RiskLevel == nil {
		return AggregatedRisk{}, invalid("risk_level", "missing")
	}
	level, ok := ParseRiskLevel(*raw.RiskLevel)
	if !ok {
		return AggregatedRisk{}, invalid("risk_level", fmt.Sprintf("unknown level %q", *raw.RiskLevel))
	}

	if len(raw.Breakdown) == 0 {
		return AggregatedRisk{}, invalid("breakdown", "empty")
	}
	entries, err := orderedEntries(raw.Breakdown)
	if err != nil {
		return AggregatedRisk{}, err
	}

	for _, e := range entries {
		if _, err := checkSeverity(entryField(e.kind, "severity"), *e.entry.Severity); err != nil {
			return AggregatedRisk{}, err
		}
	}

	for _, e := range entries {
		w := *e.entry.Weight
		if !finite(w) || w < 0 || w > 1 {
			return AggregatedRisk{}, invalid(entryField(e.kind, "weight"), fmt.Sprintf("%g outside [0,1]", w))
		}
	}

	weightSum := 0.0
	for _, e := range entries {
		weightSum += *e.entry.Weight
	}
	if math.Abs(weightSum-1.0) > WeightTolerance {
		return AggregatedRisk{}, invalid("breakdown.weight", fmt.Sprintf("weights sum to %g, want 1", weightSum))
	}

	contributionSum := 0.0
	for _, e := range entries {
		c := *e.entry.Contribution
		expected := *e.entry.Weight * *e.entry.Severity
		if !finite(c) || math.Abs(c-expected) > ScoreTolerance {
			return AggregatedRisk{}, invalid(entryField(e.kind, "contribution"),
				fmt.Sprintf("%g != weight×severity %g", c, expected))
		}
		contributionSum += c
	}

	if score < MinScore || score > MaxScore {
		return AggregatedRisk{}, invalid("risk_score", fmt.Sprintf("%g outside [%g,%g]", score, MinScore, MaxScore))
	}

	if math.Abs(score-contributionSum) > ScoreTolerance {
		return AggregatedRisk{}, invalid("risk_score",
			fmt.Sprintf("%g != sum of contributions %g", score, contributionSum))
	}

	breakdown := make(map[FactorKind]BreakdownEntry, len(entries))
	for _, e := range entries {
		breakdown[e.kind] = BreakdownEntry{
			Weight:       *e.entry.Weight,
			Severity:     int(*e.entry.Severity),
			Contribution: *e.entry.Contribution,
		}
	}

	return AggregatedRisk{
		RiskScore: score,
		RiskLevel: level,
		Breakdown: breakdown,
	}, nil
}

func orderedEntries(breakdown map[string]RawBreakdownEntry) ([]rawEntry, error) {
	names := make([]string, 0, len(breakdown))
	for name := range breakdown {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]rawEntry, 0, len(names))
	for _, name := range names {
		kind := FactorKind(name)
		if !kind.Known() {
			return nil, invalid("breakdown."+name, "unknown factor")
		}
		entry := breakdown[name]
		switch {
		case entry.Weight == nil:
			return nil, invalid(entryField(kind, "weight"), "missing")
		case entry.Severity == nil:
			return nil, invalid(entryField(kind, "severity"), "missing")
		case entry.Contribution == nil:
			return nil, invalid(entryField(kind, "contribution"), "missing")
		}
		entries = append(entries, rawEntry{kind: kind, entry: entry})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return factorOrder[entries[i].kind] < factorOrder[entries[j].kind]
	})
	return entries, nil
}

// checkSeverity accepts integral values in [1,5]; 3.0 is fine, 3.5 is not.
func checkSeverity(field string, v float64) (int, error) {
	if !finite(v) || v != math.Trunc(v) {
		return 0, invalid(field, fmt.Sprintf("%g is not an integer", v))
	}
	if v < MinSeverity || v > MaxSeverity {
		return 0, invalid(field, fmt.Sprintf("%g outside [%d,%d]", v, MinSeverity, MaxSeverity))
	}
	return int(v), nil
}

func entryField(kind FactorKind, name string) string {
	return "breakdown." + string(kind) + "." + name
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func invalid(field, reason string) error {
	return &cwerrors.InvalidAggregation{Field: field, Reason: reason}
}
