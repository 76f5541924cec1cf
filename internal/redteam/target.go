package redteam

import (
	"encoding/json"
	"strings"

	"github.com/sentinelai/sentinel/internal/domain"
)

// TargetVulnerability is a vulnerability as served by the analysis backend.
// Upstream records vary in key names (endpoint/route/path, title/
// vulnerability_type/name), so decoding consults a fixed-order fallback list
// and the struct keeps only the canonical keys.
type TargetVulnerability struct {
	Endpoint       string `json:"endpoint"`
	Method         string `json:"method"`
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Recommendation string `json:"recommendation"`
	ValidatedBy    string `json:"validated_by"`
	Confidence     int    `json:"confidence"`

	// raw is the lowercased source record, kept for keyword categorization.
	raw string
}

// UnmarshalJSON decodes a loosely-shaped upstream record.
func (t *TargetVulnerability) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	str := func(keys ...string) string {
		for _, k := range keys {
			raw, ok := m[k]
			if !ok {
				continue
			}
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
		}
		return ""
	}

	t.Endpoint = str("endpoint", "route", "path")
	if t.Endpoint == "" {
		t.Endpoint = "Unknown"
	}
	t.Method = str("method")
	if t.Method == "" {
		t.Method = "GET"
	}
	t.Title = str("title", "vulnerability_type", "name")
	if t.Title == "" {
		t.Title = "Unknown Vulnerability"
	}
	t.Severity = strings.ToLower(str("severity"))
	if t.Severity == "" {
		t.Severity = "medium"
	}
	t.Recommendation = str("recommendation")
	if t.Recommendation == "" {
		t.Recommendation = "Review and implement proper access controls"
	}
	t.ValidatedBy = str("validated_by")
	t.Confidence = domain.CoerceConfidence(m["confidence"])
	t.raw = strings.ToLower(string(data))
	return nil
}

// MarshalJSON keeps only the canonical keys.
func (t TargetVulnerability) MarshalJSON() ([]byte, error) {
	type canonical TargetVulnerability
	return json.Marshal(canonical(t))
}

// ModelTags maps a reviewer name to the provenance tags that indicate the
// model participated in the verdict. Qwen deliberately excludes
// fallback_mistral: a fallback verdict means qwen never answered.
var ModelTags = map[string]map[string]bool{
	"mistral": {
		domain.TagFallbackMistral: true,
		domain.TagConsensus:       true,
		domain.TagJudged:          true,
		domain.TagGeminiValidated: true,
	},
	"qwen": {
		domain.TagConsensus:       true,
		domain.TagJudged:          true,
		domain.TagGeminiValidated: true,
	},
}

// FilterByModel keeps vulnerabilities the named model participated in.
// An unknown or empty model name returns the input unchanged.
func FilterByModel(vulns []TargetVulnerability, model string) []TargetVulnerability {
	tags, ok := ModelTags[model]
	if !ok {
		return vulns
	}
	var out []TargetVulnerability
	for _, v := range vulns {
		if tags[v.ValidatedBy] {
			out = append(out, v)
		}
	}
	return out
}
