// Package answers converts raw wizard submissions into the canonical answer
// record consumed by the document generator.
package answers

import (
	"fmt"
	"strconv"
	"strings"
)

// Answers is the canonical answer set of the wizard. The numbered keys the
// UI submits map onto the named fields as listed in fieldKeys.
type Answers struct {
	Company      string `json:"company"`
	BusinessArea string `json:"business_area"`
	ProcessName  string `json:"process_name"`
	Audience     string `json:"audience"`
	Goal         string `json:"goal"`
	Steps        string `json:"steps"`
	Resources    string `json:"resources"`
	Results      string `json:"results"`
}

type fieldKey struct {
	numbered string
	aliases  []string
	set      func(a *Answers, v string)
}

var fieldKeys = []fieldKey{
	{"q1", []string{"company", "companyName", "company_name"}, func(a *Answers, v string) { a.Company = v }},
	{"q2", []string{"businessArea", "business_area"}, func(a *Answers, v string) { a.BusinessArea = v }},
	{"q3", []string{"processName", "process_name", "process"}, func(a *Answers, v string) { a.ProcessName = v }},
	{"q4", []string{"audience"}, func(a *Answers, v string) { a.Audience = v }},
	{"q5", []string{"goal", "purpose"}, func(a *Answers, v string) { a.Goal = v }},
	{"q6", []string{"steps"}, func(a *Answers, v string) { a.Steps = v }},
	{"q7", []string{"resources"}, func(a *Answers, v string) { a.Resources = v }},
	{"q8", []string{"results", "expectedResults", "expected_results"}, func(a *Answers, v string) { a.Results = v }},
}

// Parse builds Answers from a decoded JSON object. A numbered key (q1..q8)
// wins over its named alias when both are non-empty. Unknown keys are
// ignored and malformed values never produce an error.
func Parse(raw map[string]any) Answers {
	var a Answers
	for _, fk := range fieldKeys {
		v := stringify(raw[fk.numbered])
		if v == "" {
			for _, alias := range fk.aliases {
				if v = stringify(raw[alias]); v != "" {
					break
				}
			}
		}
		fk.set(&a, v)
	}
	return a
}

// Empty reports whether no field carries a value.
func (a Answers) Empty() bool {
	return a == Answers{}
}

// Numbered returns the answers keyed q1..q8, omitting empty fields.
func (a Answers) Numbered() map[string]string {
	values := []string{a.Company, a.BusinessArea, a.ProcessName, a.Audience, a.Goal, a.Steps, a.Resources, a.Results}
	out := make(map[string]string, len(values))
	for i, v := range values {
		if v != "" {
			out[fieldKeys[i].numbered] = v
		}
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case []string:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := strings.TrimSpace(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// SplitSteps splits the free-text steps answer on periods, newlines and
// semicolons. Segments are trimmed, empty ones dropped, and at most max are
// kept (no cap when max <= 0).
func SplitSteps(text string, max int) []string {
	segments := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n' || r == '\r' || r == ';'
	})
	steps := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		steps = append(steps, s)
		if max > 0 && len(steps) == max {
			break
		}
	}
	return steps
}
