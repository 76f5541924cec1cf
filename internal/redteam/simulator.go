// Package redteam simulates exploit attempts against confirmed
// vulnerabilities and records successful exploits as findings.
package redteam

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelai/sentinel/internal/domain"
	"github.com/sentinelai/sentinel/internal/logging"
	"github.com/sentinelai/sentinel/internal/metrics"
)

// successProbability maps vulnerability severity to exploit success odds.
var successProbability = map[string]float64{
	"critical": 0.85,
	"high":     0.70,
	"medium":   0.50,
	"low":      0.30,
	"info":     0.10,
}

// AttackResult is one simulated exploit attempt.
type AttackResult struct {
	AttackName             string `json:"attack_name"`
	AttackDescription      string `json:"attack_description"`
	TargetEndpoint         string `json:"target_endpoint"`
	TargetMethod           string `json:"target_method"`
	VulnerabilityTitle     string `json:"vulnerability_title"`
	OriginalSeverity       string `json:"original_severity"`
	AttackSuccessful       bool   `json:"attack_successful"`
	ExploitationDifficulty string `json:"exploitation_difficulty"`
	SimulatedAt            string `json:"simulated_at"`
	Recommendation         string `json:"recommendation"`
	ModelSource            string `json:"model_source"`
	ValidatedBy            string `json:"validated_by"`
	Confidence             int    `json:"confidence"`
}

// CycleSummary aggregates one red-team cycle.
type CycleSummary struct {
	Model                   string `json:"model,omitempty"`
	VulnerabilitiesAnalyzed int    `json:"vulnerabilities_analyzed"`
	RecentScansFound        int    `json:"recent_scans_found"`
	TotalAttacksSimulated   int    `json:"total_attacks_simulated"`
	SuccessfulAttacks       int    `json:"successful_attacks"`
	FindingsCreated         int    `json:"findings_created"`
}

// CycleResult is the full response of one red-team cycle.
type CycleResult struct {
	Status           string         `json:"status"`
	Timestamp        string         `json:"timestamp"`
	ModelSource      string         `json:"model_source"`
	Summary          CycleSummary   `json:"summary"`
	AttackResults    []AttackResult `json:"attack_results"`
	HighRiskFindings []AttackResult `json:"high_risk_findings"`
}

// FindingStore persists successful exploits; satisfied by the Postgres store.
type FindingStore interface {
	CreateFindings(ctx context.Context, findings []*domain.Finding) error
}

// Simulator fetches vulnerabilities from the analysis backend and runs
// simulated exploits against them.
type Simulator struct {
	backendURL string
	client     *http.Client
	templates  map[string][]AttackTemplate
	rng        *rand.Rand
	pacing     time.Duration
	audit      *logging.AuditLogger
}

// NewSimulator wires a simulator. A nil templates map falls back to the
// built-in library; rng may be seeded for deterministic tests.
func NewSimulator(backendURL string, templates map[string][]AttackTemplate, rng *rand.Rand, audit *logging.AuditLogger) *Simulator {
	if templates == nil {
		templates, _ = LoadTemplates("")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{
		backendURL: strings.TrimRight(backendURL, "/"),
		client:     &http.Client{Timeout: 30 * time.Second},
		templates:  templates,
		rng:        rng,
		pacing:     100 * time.Millisecond,
		audit:      audit,
	}
}

// FetchVulnerabilities reads the backend's vulnerability projection,
// optionally filtered to one model's provenance tags.
func (s *Simulator) FetchVulnerabilities(ctx context.Context, model string) ([]TargetVulnerability, error) {
	var vulns []TargetVulnerability
	if err := s.getJSON(ctx, "/api/dashboard/vulnerabilities", &vulns); err != nil {
		return nil, err
	}
	if model != "" {
		filtered := FilterByModel(vulns, model)
		logging.Op().Info("fetched vulnerabilities for model",
			"model", model, "total", len(vulns), "filtered", len(filtered))
		return filtered, nil
	}
	return vulns, nil
}

// FetchRecentScans reads the backend's recent-scan projection.
func (s *Simulator) FetchRecentScans(ctx context.Context) ([]json.RawMessage, error) {
	var scans []json.RawMessage
	if err := s.getJSON(ctx, "/api/dashboard/recent_scans", &scans); err != nil {
		return nil, err
	}
	return scans, nil
}

// Categorize picks the attack-template category by keyword match on the
// lowercased source record.
func Categorize(v TargetVulnerability) string {
	text := v.raw
	if text == "" {
		data, _ := json.Marshal(v)
		text = strings.ToLower(string(data))
	}
	switch {
	case containsAny(text, "bola", "idor", "object reference", "insecure direct"):
		return categoryBOLA
	case containsAny(text, "privilege", "escalation", "role"):
		return categoryPrivEsc
	case containsAny(text, "auth", "login", "session", "token", "jwt"):
		return categoryAuthN
	case containsAny(text, "access control", "authorization", "forbidden"):
		return categoryAuthZ
	default:
		return categoryDefault
	}
}

// Simulate runs one to two templates against each vulnerability with a
// 100ms pacing sleep per attempt.
func (s *Simulator) Simulate(ctx context.Context, vulns []TargetVulnerability, modelSource string) []AttackResult {
	if len(vulns) == 0 {
		logging.Op().Info("no vulnerabilities to attack", "model", modelSource)
		return nil
	}

	log := logging.Op()
	log.Info("starting attack simulation", "vulnerabilities", len(vulns), "model", modelSource)

	var results []AttackResult
	for _, vuln := range vulns {
		category := Categorize(vuln)
		templates := s.templates[category]
		if len(templates) == 0 {
			templates = s.templates[categoryDefault]
		}

		for _, attack := range s.pick(templates) {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(s.pacing):
			}

			result := s.attempt(attack, vuln, modelSource)
			results = append(results, result)
			metrics.AttackSimulated(result.AttackSuccessful)
			s.audit.Record("attack_simulated", "endpoint", result.TargetEndpoint,
				fmt.Sprintf("%s success=%t model=%s", attack.Name, result.AttackSuccessful, modelSource))

			log.Info("attack simulated",
				"attack", attack.Name, "target", result.TargetEndpoint,
				"success", result.AttackSuccessful, "model", modelSource)
		}
	}

	succeeded := 0
	for _, r := range results {
		if r.AttackSuccessful {
			succeeded++
		}
	}
	log.Info("attack simulation complete",
		"total", len(results), "successful", succeeded, "model", modelSource)
	return results
}

// pick selects min(len, 1..2) templates uniformly without replacement.
func (s *Simulator) pick(templates []AttackTemplate) []AttackTemplate {
	n := 1 + s.rng.Intn(2)
	if n > len(templates) {
		n = len(templates)
	}
	perm := s.rng.Perm(len(templates))
	picked := make([]AttackTemplate, 0, n)
	for _, idx := range perm[:n] {
		picked = append(picked, templates[idx])
	}
	return picked
}

func (s *Simulator) attempt(attack AttackTemplate, vuln TargetVulnerability, modelSource string) AttackResult {
	p, ok := successProbability[vuln.Severity]
	if !ok {
		p = 0.50
	}
	success := s.rng.Float64() < p

	difficulty := "Hard"
	if p > 0.6 {
		difficulty = "Easy"
	} else if p > 0.3 {
		difficulty = "Medium"
	}

	return AttackResult{
		AttackName:             attack.Name,
		AttackDescription:      attack.Description,
		TargetEndpoint:         vuln.Endpoint,
		TargetMethod:           vuln.Method,
		VulnerabilityTitle:     vuln.Title,
		OriginalSeverity:       vuln.Severity,
		AttackSuccessful:       success,
		ExploitationDifficulty: difficulty,
		SimulatedAt:            time.Now().UTC().Format(time.RFC3339),
		Recommendation:         vuln.Recommendation,
		ModelSource:            modelSource,
		ValidatedBy:            vuln.ValidatedBy,
		Confidence:             vuln.Confidence,
	}
}

// RunCycle executes a full red-team cycle over all vulnerabilities. When a
// store is supplied, each successful exploit persists as an open finding in
// one transaction.
func (s *Simulator) RunCycle(ctx context.Context, store FindingStore) (*CycleResult, error) {
	return s.runCycle(ctx, "", "combined", store)
}

// RunModelCycle executes a cycle scoped to one model's vulnerabilities.
func (s *Simulator) RunModelCycle(ctx context.Context, model string, store FindingStore) (*CycleResult, error) {
	return s.runCycle(ctx, model, model, store)
}

func (s *Simulator) runCycle(ctx context.Context, model, modelSource string, store FindingStore) (*CycleResult, error) {
	logging.Op().Info("starting red team cycle", "model", modelSource)
	s.audit.Record("cycle_started", "model", modelSource, "")

	vulns, err := s.FetchVulnerabilities(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("fetch vulnerabilities: %w", err)
	}
	scans, err := s.FetchRecentScans(ctx)
	if err != nil {
		logging.Op().Warn("fetch recent scans failed", "error", err)
	}

	results := s.Simulate(ctx, vulns, modelSource)

	var prefix string
	if model != "" {
		prefix = "[" + strings.ToUpper(model) + "] "
	}

	var findings []*domain.Finding
	for _, r := range results {
		if !r.AttackSuccessful {
			continue
		}
		evidence := fmt.Sprintf("Simulated attack successful. Difficulty: %s. Model: %s",
			r.ExploitationDifficulty, r.ModelSource)
		findings = append(findings, &domain.Finding{
			Title:          fmt.Sprintf("%sExploitable: %s", prefix, r.VulnerabilityTitle),
			Description:    fmt.Sprintf("%sAttack '%s' succeeded against %s", prefix, r.AttackName, r.TargetEndpoint),
			Severity:       r.OriginalSeverity,
			Status:         domain.FindingOpen,
			Category:       r.AttackName,
			Endpoint:       r.TargetEndpoint,
			Method:         r.TargetMethod,
			Evidence:       evidence,
			Recommendation: r.Recommendation,
		})
	}

	created := 0
	if store != nil && len(findings) > 0 {
		if err := store.CreateFindings(ctx, findings); err != nil {
			logging.Op().Error("failed to persist findings", "error", err)
		} else {
			created = len(findings)
			for range findings {
				metrics.FindingCreated()
			}
		}
	}

	var successes, highRisk []AttackResult
	for _, r := range results {
		if !r.AttackSuccessful {
			continue
		}
		successes = append(successes, r)
		if r.OriginalSeverity == "critical" || r.OriginalSeverity == "high" {
			highRisk = append(highRisk, r)
		}
	}

	return &CycleResult{
		Status:      "completed",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		ModelSource: modelSource,
		Summary: CycleSummary{
			Model:                   model,
			VulnerabilitiesAnalyzed: len(vulns),
			RecentScansFound:        len(scans),
			TotalAttacksSimulated:   len(results),
			SuccessfulAttacks:       len(successes),
			FindingsCreated:         created,
		},
		AttackResults:    results,
		HighRiskFindings: highRisk,
	}, nil
}

func (s *Simulator) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.backendURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func containsAny(text string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
