package redteam

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sentinelai/sentinel/internal/domain"
)

func testSimulator(backendURL string) *Simulator {
	s := NewSimulator(backendURL, nil, rand.New(rand.NewSource(1)), nil)
	s.pacing = 0
	return s
}

func decodeTarget(t *testing.T, data string) TargetVulnerability {
	t.Helper()
	var v TargetVulnerability
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return v
}

func TestTargetVulnerabilityFallbackKeys(t *testing.T) {
	t.Run("endpoint from route", func(t *testing.T) {
		v := decodeTarget(t, `{"route": "/api/users", "severity": "High"}`)
		if v.Endpoint != "/api/users" {
			t.Errorf("expected route fallback, got %q", v.Endpoint)
		}
		if v.Severity != "high" {
			t.Errorf("severity should lowercase, got %q", v.Severity)
		}
	})

	t.Run("endpoint from path", func(t *testing.T) {
		v := decodeTarget(t, `{"path": "/api/orders/{id}"}`)
		if v.Endpoint != "/api/orders/{id}" {
			t.Errorf("expected path fallback, got %q", v.Endpoint)
		}
	})

	t.Run("endpoint precedence", func(t *testing.T) {
		v := decodeTarget(t, `{"endpoint": "/a", "route": "/b", "path": "/c"}`)
		if v.Endpoint != "/a" {
			t.Errorf("endpoint key must win, got %q", v.Endpoint)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		v := decodeTarget(t, `{}`)
		if v.Endpoint != "Unknown" || v.Method != "GET" || v.Severity != "medium" {
			t.Errorf("unexpected defaults: %+v", v)
		}
		if v.Recommendation == "" {
			t.Error("recommendation default missing")
		}
	})

	t.Run("title from vulnerability_type", func(t *testing.T) {
		v := decodeTarget(t, `{"vulnerability_type": "BOLA"}`)
		if v.Title != "BOLA" {
			t.Errorf("expected BOLA title, got %q", v.Title)
		}
	})

	t.Run("serialized form keeps canonical keys only", func(t *testing.T) {
		v := decodeTarget(t, `{"route": "/r", "extra_key": "zzz"}`)
		out, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(out), "extra_key") || strings.Contains(string(out), "route") {
			t.Errorf("non-canonical keys leaked: %s", out)
		}
		if !strings.Contains(string(out), `"endpoint":"/r"`) {
			t.Errorf("canonical endpoint missing: %s", out)
		}
	})
}

func TestModelTagMembership(t *testing.T) {
	vulns := []TargetVulnerability{
		{ValidatedBy: domain.TagConsensus},
		{ValidatedBy: domain.TagJudged},
		{ValidatedBy: domain.TagGeminiValidated},
		{ValidatedBy: domain.TagFallbackMistral},
		{ValidatedBy: domain.TagClean},
	}

	mistral := FilterByModel(vulns, "mistral")
	if len(mistral) != 4 {
		t.Errorf("mistral should include fallback_mistral: got %d", len(mistral))
	}

	qwen := FilterByModel(vulns, "qwen")
	if len(qwen) != 3 {
		t.Errorf("qwen must exclude fallback_mistral: got %d", len(qwen))
	}
	for _, v := range qwen {
		if v.ValidatedBy == domain.TagFallbackMistral {
			t.Error("fallback_mistral leaked into the qwen set")
		}
	}

	if got := FilterByModel(vulns, ""); len(got) != len(vulns) {
		t.Errorf("empty model filter must pass everything, got %d", len(got))
	}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		record string
		want   string
	}{
		{`{"vulnerability_type": "BOLA"}`, categoryBOLA},
		{`{"title": "Insecure Direct Object Reference"}`, categoryBOLA},
		{`{"vulnerability_type": "Privilege Escalation"}`, categoryPrivEsc},
		{`{"title": "Missing Role Guard"}`, categoryPrivEsc},
		{`{"title": "Broken session handling"}`, categoryAuthN},
		{`{"title": "Forbidden bypass", "description": "access control gap"}`, categoryAuthZ},
		{`{"title": "Something else entirely"}`, categoryDefault},
	}
	for _, c := range cases {
		v := decodeTarget(t, c.record)
		if got := Categorize(v); got != c.want {
			t.Errorf("Categorize(%s) = %s, want %s", c.record, got, c.want)
		}
	}
}

func TestSimulateShapesResults(t *testing.T) {
	s := testSimulator("http://unused")
	vulns := []TargetVulnerability{
		decodeTarget(t, `{"endpoint": "/api/users/{id}", "method": "GET", "vulnerability_type": "BOLA", "severity": "critical", "validated_by": "consensus", "confidence": 86}`),
	}

	results := s.Simulate(context.Background(), vulns, "combined")
	if len(results) < 1 || len(results) > 2 {
		t.Fatalf("expected 1-2 attacks per vulnerability, got %d", len(results))
	}
	for _, r := range results {
		if r.TargetEndpoint != "/api/users/{id}" || r.TargetMethod != "GET" {
			t.Errorf("target mismatch: %+v", r)
		}
		if r.ExploitationDifficulty != "Easy" {
			t.Errorf("critical severity (p=0.85) must grade Easy, got %s", r.ExploitationDifficulty)
		}
		if r.ModelSource != "combined" || r.ValidatedBy != domain.TagConsensus || r.Confidence != 86 {
			t.Errorf("provenance not carried through: %+v", r)
		}
		if r.SimulatedAt == "" || r.Recommendation == "" {
			t.Errorf("missing timestamp or recommendation: %+v", r)
		}
	}
}

func TestSimulateDifficultyBands(t *testing.T) {
	s := testSimulator("http://unused")
	cases := map[string]string{
		"critical": "Easy",
		"high":     "Easy",
		"medium":   "Medium",
		"low":      "Hard", // p=0.30 is not > 0.3
		"info":     "Hard",
		"bizarre":  "Medium", // default p=0.50
	}
	for severity, want := range cases {
		v := decodeTarget(t, `{"severity": "`+severity+`"}`)
		r := s.attempt(AttackTemplate{Name: "probe"}, v, "combined")
		if r.ExploitationDifficulty != want {
			t.Errorf("severity %s => difficulty %s, want %s", severity, r.ExploitationDifficulty, want)
		}
	}
}

type memFindings struct {
	findings []*domain.Finding
}

func (m *memFindings) CreateFindings(ctx context.Context, findings []*domain.Finding) error {
	m.findings = append(m.findings, findings...)
	return nil
}

func backendStub(t *testing.T, vulns string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/dashboard/vulnerabilities":
			w.Write([]byte(vulns))
		case "/api/dashboard/recent_scans":
			w.Write([]byte(`[{"id": "#abc123"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestRunCyclePersistsSuccessesOnly(t *testing.T) {
	srv := backendStub(t, `[
		{"endpoint": "/a", "vulnerability_type": "BOLA", "severity": "critical", "validated_by": "consensus", "confidence": 90},
		{"endpoint": "/b", "vulnerability_type": "BOLA", "severity": "info", "validated_by": "judged", "confidence": 60}
	]`)
	defer srv.Close()

	s := testSimulator(srv.URL)
	store := &memFindings{}

	result, err := s.RunCycle(context.Background(), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "completed" || result.ModelSource != "combined" {
		t.Errorf("unexpected cycle header: %+v", result)
	}
	if result.Summary.VulnerabilitiesAnalyzed != 2 {
		t.Errorf("expected 2 analyzed, got %d", result.Summary.VulnerabilitiesAnalyzed)
	}
	if result.Summary.RecentScansFound != 1 {
		t.Errorf("expected 1 recent scan, got %d", result.Summary.RecentScansFound)
	}
	if result.Summary.FindingsCreated != len(store.findings) {
		t.Errorf("summary/persisted mismatch: %d vs %d",
			result.Summary.FindingsCreated, len(store.findings))
	}
	succeeded := 0
	for _, r := range result.AttackResults {
		if r.AttackSuccessful {
			succeeded++
		}
	}
	if len(store.findings) != succeeded {
		t.Errorf("only successful attacks persist: %d findings vs %d successes",
			len(store.findings), succeeded)
	}
	for _, f := range store.findings {
		if f.Status != domain.FindingOpen {
			t.Errorf("finding status must default open, got %s", f.Status)
		}
		if !strings.HasPrefix(f.Title, "Exploitable: ") {
			t.Errorf("combined cycle title must not carry a model prefix: %q", f.Title)
		}
		if !strings.Contains(f.Evidence, "Model: combined") {
			t.Errorf("evidence must be model-stamped: %q", f.Evidence)
		}
	}
	for _, r := range result.HighRiskFindings {
		if !r.AttackSuccessful || (r.OriginalSeverity != "critical" && r.OriginalSeverity != "high") {
			t.Errorf("high risk set polluted: %+v", r)
		}
	}
}

func TestRunModelCyclePrefixesTitles(t *testing.T) {
	srv := backendStub(t, `[
		{"endpoint": "/a", "vulnerability_type": "BOLA", "severity": "critical", "validated_by": "consensus", "confidence": 90},
		{"endpoint": "/b", "vulnerability_type": "BOLA", "severity": "critical", "validated_by": "fallback_mistral", "confidence": 80}
	]`)
	defer srv.Close()

	s := testSimulator(srv.URL)
	store := &memFindings{}

	result, err := s.RunModelCycle(context.Background(), "qwen", store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ModelSource != "qwen" {
		t.Errorf("unexpected model source %q", result.ModelSource)
	}
	// fallback_mistral is excluded from the qwen set.
	if result.Summary.VulnerabilitiesAnalyzed != 1 {
		t.Errorf("expected 1 qwen vulnerability, got %d", result.Summary.VulnerabilitiesAnalyzed)
	}
	for _, f := range store.findings {
		if !strings.HasPrefix(f.Title, "[QWEN] ") {
			t.Errorf("model cycle titles carry the prefix, got %q", f.Title)
		}
	}
}

func TestPickBounds(t *testing.T) {
	s := testSimulator("http://unused")
	templates := defaultTemplates[categoryBOLA]
	for i := 0; i < 100; i++ {
		picked := s.pick(templates)
		if len(picked) < 1 || len(picked) > 2 {
			t.Fatalf("pick returned %d templates", len(picked))
		}
	}
	if one := s.pick(templates[:1]); len(one) != 1 {
		t.Errorf("single-template list must yield one pick, got %d", len(one))
	}
}
