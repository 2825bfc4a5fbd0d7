package extraction

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Lllllllleong/solvencyflow/internal/models"
	"github.com/Lllllllleong/solvencyflow/internal/solvency"
)

const amountTolerance = 0.005

// Result is what the extractor could establish from an application's documents.
type Result struct {
	Metrics solvency.Metrics
	// Sources records where each metric was read, e.g. "Nomina: Líquid a percebre".
	Sources   map[string]string
	Missing   []string
	Ambiguous []string
}

// Complete reports whether every metric was found exactly once.
func (r Result) Complete() bool {
	return len(r.Missing) == 0 && len(r.Ambiguous) == 0
}

// Reason describes why the result is incomplete.
func (r Result) Reason() string {
	var parts []string
	if len(r.Missing) > 0 {
		parts = append(parts, "missing fields: "+strings.Join(r.Missing, ", "))
	}
	if len(r.Ambiguous) > 0 {
		parts = append(parts, "ambiguous fields: "+strings.Join(r.Ambiguous, ", "))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Could not extract all financial metrics from the documents (" + strings.Join(parts, "; ") + "); manual review required."
}

type match struct {
	label  string
	value  float64
	source string
}

// Extract applies the rules to the OCR results of one application, keyed as
// produced by the OCR step.
func (rs *Rules) Extract(docs map[string]models.AnalysisResult) Result {
	res := Result{Sources: make(map[string]string)}

	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i := range rs.Metrics {
		rule := &rs.Metrics[i]
		matches := rule.search(keys, docs)
		if len(matches) == 0 {
			res.Missing = append(res.Missing, rule.Name)
			continue
		}
		value, source, ok := rule.aggregate(matches)
		if !ok {
			res.Ambiguous = append(res.Ambiguous, rule.Name)
			continue
		}
		setMetric(&res.Metrics, rule.Name, value)
		res.Sources[rule.Name] = source
	}
	return res
}

// search looks in documents of the preferred type first and falls back to
// the remaining documents only when nothing matched there.
func (r *MetricRule) search(keys []string, docs map[string]models.AnalysisResult) []match {
	var preferred, others []string
	for _, k := range keys {
		if r.Document != "" && strings.EqualFold(docs[k].Type, r.Document) {
			preferred = append(preferred, k)
		} else {
			others = append(others, k)
		}
	}

	for _, group := range [][]string{preferred, others} {
		var found []match
		for _, k := range group {
			found = append(found, r.searchDocument(k, docs[k])...)
		}
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

func (r *MetricRule) searchDocument(key string, doc models.AnalysisResult) []match {
	var found []match
	for _, f := range doc.Forms {
		if !r.matches(f.Key) {
			continue
		}
		if v, ok := ParseAmount(f.Value); ok {
			found = append(found, match{label: f.Key, value: math.Abs(v), source: key + ": " + f.Key})
		}
	}

	for _, t := range doc.Tables {
		for _, row := range t.Rows {
			if m, ok := r.matchRow(key, row); ok {
				found = append(found, m)
			}
		}
	}
	return found
}

// matchRow takes the first cell matching a label and the first amount after it.
func (r *MetricRule) matchRow(key string, row []string) (match, bool) {
	for i, cell := range row {
		if !r.matches(cell) {
			continue
		}
		for _, candidate := range row[i+1:] {
			if v, ok := ParseAmount(candidate); ok {
				return match{label: cell, value: math.Abs(v), source: key + ": " + cell}, true
			}
		}
		return match{}, false
	}
	return match{}, false
}

func (r *MetricRule) aggregate(matches []match) (float64, string, bool) {
	if r.Aggregate == AggregateSum {
		return sumByLabel(matches)
	}
	first := matches[0]
	for _, m := range matches[1:] {
		if math.Abs(m.value-first.value) >= amountTolerance {
			return 0, "", false
		}
	}
	return first.value, first.source, true
}

// sumByLabel adds one amount per distinct label. Repeats of the same label
// must agree.
func sumByLabel(matches []match) (float64, string, bool) {
	byLabel := make(map[string]match)
	var order []string
	for _, m := range matches {
		norm := strings.ToLower(strings.TrimSpace(m.label))
		prev, seen := byLabel[norm]
		if !seen {
			byLabel[norm] = m
			order = append(order, norm)
			continue
		}
		if math.Abs(prev.value-m.value) >= amountTolerance {
			return 0, "", false
		}
	}

	var total float64
	sources := make([]string, 0, len(order))
	for _, norm := range order {
		total += byLabel[norm].value
		sources = append(sources, byLabel[norm].source)
	}
	return total, strings.Join(sources, " + "), true
}

func setMetric(m *solvency.Metrics, name string, v float64) {
	switch name {
	case MetricNetSalary:
		m.NetSalary = v
	case MetricFixedMonthlyDebt:
		m.FixedMonthlyDebt = v
	case MetricBankIncome:
		m.BankIncome = v
	default:
		panic(fmt.Sprintf("extraction: unknown metric %q", name))
	}
}
