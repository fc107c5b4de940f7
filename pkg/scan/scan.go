// Package scan detects prompt-injection and persona-override attempts in
// memory payloads before they are stored or surfaced to an agent.
//
// Detection is advisory and blocking, never sanitizing: the payload is not
// mutated or redacted, the caller decides whether to reject or quarantine.
package scan

import "regexp"

// pattern pairs a stable flag identifier with its compiled indicator.
type pattern struct {
	flag string
	re   *regexp.Regexp
}

// The indicator list is fixed; every stored capsule was screened against
// exactly these patterns, so additions need a coordinated rollout on the
// recall side. All are case-insensitive except the bare DAN token, which
// only counts as an indicator when written as the upper-case persona name.
var patterns = []pattern{
	{"ignore_instructions", regexp.MustCompile(`(?i)ignore\s+(previous|prior|all)\s+instructions`)},
	{"you_are_now", regexp.MustCompile(`(?i)you\s+are\s+now`)},
	{"disregard", regexp.MustCompile(`(?i)disregard`)},
	{"system_prompt", regexp.MustCompile(`(?i)system\s+prompt`)},
	{"jailbreak", regexp.MustCompile(`(?i)jailbreak`)},
	{"dan_token", regexp.MustCompile(`\bDAN\b`)},
	{"forget_all", regexp.MustCompile(`(?i)forget\s+(everything|all)`)},
	{"new_persona", regexp.MustCompile(`(?i)new\s+persona`)},
	{"override_safety", regexp.MustCompile(`(?i)override\s+(safety|guidelines|rules)`)},
	{"script_tag", regexp.MustCompile(`(?i)<\s*script`)},
	{"prompt_injection", regexp.MustCompile(`(?i)prompt\s*injection`)},
}

// Result is the outcome of one payload scan.
type Result struct {
	Clean bool     `json:"clean"`
	Flags []string `json:"flags"`
}

// Scan recursively walks a decoded JSON payload and tests every string
// leaf against the indicator list. Arrays are scanned element-wise and
// objects over their values; key names are not scanned. Flags are
// deduplicated pattern identifiers in indicator-list order.
func Scan(payload any) Result {
	hits := make(map[string]bool)
	walk(payload, hits)

	flags := make([]string, 0, len(hits))
	for _, p := range patterns {
		if hits[p.flag] {
			flags = append(flags, p.flag)
		}
	}
	return Result{Clean: len(flags) == 0, Flags: flags}
}

func walk(v any, hits map[string]bool) {
	switch val := v.(type) {
	case string:
		for _, p := range patterns {
			if p.re.MatchString(val) {
				hits[p.flag] = true
			}
		}
	case []any:
		for _, item := range val {
			walk(item, hits)
		}
	case map[string]any:
		for _, item := range val {
			walk(item, hits)
		}
	}
}
