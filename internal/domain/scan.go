package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Severity is the scan-level severity band derived from the integrity score.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// VulnKind classifies an authorization vulnerability.
type VulnKind string

const (
	KindBOLA                   VulnKind = "BOLA"
	KindIDOR                   VulnKind = "IDOR"
	KindPrivilegeEscalation    VulnKind = "Privilege Escalation"
	KindMissingRoleGuard       VulnKind = "Missing Role Guard"
	KindMissingAuthentication  VulnKind = "Missing Authentication"
	KindInconsistentMiddleware VulnKind = "Inconsistent Middleware"
	KindNone                   VulnKind = "None"
)

// Provenance tags describe how a verdict was reached.
const (
	TagConsensus       = "consensus"
	TagGeminiValidated = "gemini_validated"
	TagJudged          = "judged"
	TagFallbackMistral = "fallback_mistral"
	TagClean           = "clean"
	TagAllFailed       = "all_failed"
	TagSkipped         = "skipped"
)

// PositiveTags are the provenance tags downstream consumers treat as a
// confirmed-finding signal.
var PositiveTags = map[string]bool{
	TagConsensus:       true,
	TagGeminiValidated: true,
	TagJudged:          true,
	TagFallbackMistral: true,
}

// Vulnerability is one confirmed finding inside a ScanResult.
type Vulnerability struct {
	FunctionName string   `json:"function_name"`
	Method       string   `json:"method"`
	Path         string   `json:"path"`
	FilePath     string   `json:"file_path"`
	Kind         VulnKind `json:"vulnerability_type"`
	Confidence   int      `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
	ValidatedBy  string   `json:"validated_by"`
}

// vulnerabilityAlias avoids recursion in UnmarshalJSON.
type vulnerabilityAlias struct {
	FunctionName string          `json:"function_name"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	FilePath     string          `json:"file_path"`
	Kind         VulnKind        `json:"vulnerability_type"`
	Confidence   json.RawMessage `json:"confidence"`
	Reasoning    string          `json:"reasoning"`
	ValidatedBy  string          `json:"validated_by"`
}

// UnmarshalJSON coerces confidence values that arrive as strings or floats;
// anything non-coercible becomes 0.
func (v *Vulnerability) UnmarshalJSON(data []byte) error {
	var a vulnerabilityAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	v.FunctionName = a.FunctionName
	v.Method = a.Method
	v.Path = a.Path
	v.FilePath = a.FilePath
	v.Kind = a.Kind
	v.Reasoning = a.Reasoning
	v.ValidatedBy = a.ValidatedBy
	v.Confidence = CoerceConfidence(a.Confidence)
	return nil
}

// CoerceConfidence parses a raw JSON confidence value as an int.
func CoerceConfidence(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return 0
}

// EndpointOrFile is the canonical dedup coordinate for ticket creation:
// path, falling back to file path, falling back to "unknown".
func (v Vulnerability) EndpointOrFile() string {
	if v.Path != "" {
		return v.Path
	}
	if v.FilePath != "" {
		return v.FilePath
	}
	return "unknown"
}

// ScanResult is one persisted scan. Immutable after creation.
type ScanResult struct {
	ID              int64           `json:"id"`
	RepoName        string          `json:"repo_name"`
	CommitHash      string          `json:"commit_hash"`
	Timestamp       time.Time       `json:"timestamp"`
	Score           int             `json:"auth_integrity_score"`
	DriftDelta      int             `json:"drift_delta"`
	Severity        Severity        `json:"severity"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// ScanJob is a queued request to scan a repository.
type ScanJob struct {
	ID      string `json:"id"`
	Repo    string `json:"repo"`
	Branch  string `json:"branch"`
	Commit  string `json:"commit"`
	DiffURL string `json:"diff_url,omitempty"`
}

// MethodFunction is the sentinel method for non-endpoint functions.
const MethodFunction = "FUNCTION"

// CodeItem is one extracted endpoint or function submitted for review.
type CodeItem struct {
	FunctionName string   `json:"function_name"`
	Method       string   `json:"method"`
	Path         string   `json:"path"`
	Guards       []string `json:"guards"`
	Arguments    []string `json:"arguments"`
	Code         string   `json:"code"`
	FilePath     string   `json:"file_path"`
	IsEndpoint   bool     `json:"is_endpoint"`
}

// Key uniquely identifies an item within one scan: endpoints by route,
// functions by name and file.
func (c CodeItem) Key() string {
	if c.IsEndpoint {
		return c.Method + ":" + c.Path
	}
	return MethodFunction + ":" + c.FunctionName + ":" + c.FilePath
}
