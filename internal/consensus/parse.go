package consensus

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/sentinelai/sentinel/internal/domain"
)

// Verdict is one parsed opinion or the engine's merged output.
type Verdict struct {
	HasVulnerability bool            `json:"has_vulnerability"`
	Kind             domain.VulnKind `json:"vulnerability_type"`
	Confidence       int             `json:"confidence"`
	Reasoning        string          `json:"reasoning"`
}

var (
	fenceOpen  = regexp.MustCompile("(?i)^```[a-z]*\n?")
	fenceClose = regexp.MustCompile("```$")
	jsonObject = regexp.MustCompile(`(?s)\{[^{}]*\}`)
)

// ParseVerdict extracts the first JSON object from a model response. Any
// failure — empty text, no object, bad JSON, missing has_vulnerability key —
// yields nil.
func ParseVerdict(text string) *Verdict {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	text = fenceOpen.ReplaceAllString(text, "")
	text = fenceClose.ReplaceAllString(text, "")

	match := jsonObject.FindString(text)
	if match == "" {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil
	}
	if _, ok := raw["has_vulnerability"]; !ok {
		return nil
	}

	v := &Verdict{Kind: domain.KindNone}
	if err := json.Unmarshal(raw["has_vulnerability"], &v.HasVulnerability); err != nil {
		return nil
	}
	if k, ok := raw["vulnerability_type"]; ok {
		var s string
		if json.Unmarshal(k, &s) == nil && s != "" {
			v.Kind = domain.VulnKind(s)
		}
	}
	v.Confidence = domain.CoerceConfidence(raw["confidence"])
	if r, ok := raw["reasoning"]; ok {
		_ = json.Unmarshal(r, &v.Reasoning)
	}
	return v
}

// flags reports whether a verdict asserts a vulnerability.
func (v *Verdict) flags() bool {
	return v != nil && v.HasVulnerability && v.Kind != domain.KindNone
}

// nullVerdict is the canonical "no issue found" result.
func nullVerdict() Verdict {
	return Verdict{Kind: domain.KindNone, Reasoning: "No issue found"}
}
