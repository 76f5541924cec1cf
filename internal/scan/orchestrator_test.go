package scan

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sentinelai/sentinel/internal/consensus"
	"github.com/sentinelai/sentinel/internal/domain"
)

type memStore struct {
	mu      sync.Mutex
	results []*domain.ScanResult
}

func (m *memStore) SaveScanResult(ctx context.Context, r *domain.ScanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = int64(len(m.results) + 1)
	m.results = append(m.results, r)
	return nil
}

type stubEngine struct {
	mu       sync.Mutex
	inFlight int32
	maxSeen  int32
	analyze  func(item domain.CodeItem) consensus.Outcome
}

func (e *stubEngine) Analyze(ctx context.Context, item domain.CodeItem) consensus.Outcome {
	cur := atomic.AddInt32(&e.inFlight, 1)
	defer atomic.AddInt32(&e.inFlight, -1)
	e.mu.Lock()
	if cur > e.maxSeen {
		e.maxSeen = cur
	}
	e.mu.Unlock()
	if e.analyze != nil {
		return e.analyze(item)
	}
	return consensus.Outcome{Tag: domain.TagClean}
}

// repoZip builds a github-style archive with a top-level directory.
func repoZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create("repo-main/" + name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func archiveServer(t *testing.T, branches map[string][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for branch, data := range branches {
			if strings.HasSuffix(r.URL.Path, "/archive/refs/heads/"+branch+".zip") {
				w.Write(data)
				return
			}
		}
		http.NotFound(w, r)
	}))
}

const vulnerableHandler = `
@router.get('/users/{id}')
def read_user(id: int, db=None):
    user = db.query(User).get(id)
    if user is None:
        raise HTTPException(status_code=404)
    return user
`

func TestRunEmptyRepo(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"main": repoZip(t, map[string]string{"README.py": "# nothing here\n"}),
	})
	defer srv.Close()

	st := &memStore{}
	o := New(st, &stubEngine{}, Config{ArchiveBaseURL: srv.URL})

	result, err := o.Run(context.Background(), domain.ScanJob{Repo: "acme/empty", Branch: "main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 100 || result.Severity != domain.SeverityLow {
		t.Errorf("empty repo should score 100/Low, got %d/%s", result.Score, result.Severity)
	}
	if len(result.Vulnerabilities) != 0 {
		t.Errorf("expected no vulnerabilities, got %d", len(result.Vulnerabilities))
	}
	if len(st.results) != 1 {
		t.Errorf("expected one persisted result, got %d", len(st.results))
	}
}

func TestRunBranchFallback(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"master": repoZip(t, map[string]string{"app.py": vulnerableHandler}),
	})
	defer srv.Close()

	st := &memStore{}
	o := New(st, &stubEngine{}, Config{ArchiveBaseURL: srv.URL})

	if _, err := o.Run(context.Background(), domain.ScanJob{Repo: "acme/api", Branch: "main"}); err != nil {
		t.Fatalf("main->master fallback failed: %v", err)
	}
}

func TestRunNoFallbackForOtherBranches(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"master": repoZip(t, map[string]string{"app.py": vulnerableHandler}),
	})
	defer srv.Close()

	o := New(&memStore{}, &stubEngine{}, Config{ArchiveBaseURL: srv.URL})
	if _, err := o.Run(context.Background(), domain.ScanJob{Repo: "acme/api", Branch: "develop"}); err == nil {
		t.Fatal("missing non-main branch must fail the scan")
	}
}

func TestRunBadArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a zip"))
	}))
	defer srv.Close()

	o := New(&memStore{}, &stubEngine{}, Config{ArchiveBaseURL: srv.URL})
	if _, err := o.Run(context.Background(), domain.ScanJob{Repo: "acme/api", Branch: "main"}); err == nil {
		t.Fatal("bad archive must fail the scan")
	}
}

func TestRunConfirmsHighConfidenceVerdicts(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"main": repoZip(t, map[string]string{"app.py": vulnerableHandler}),
	})
	defer srv.Close()

	engine := &stubEngine{analyze: func(item domain.CodeItem) consensus.Outcome {
		if !item.IsEndpoint {
			return consensus.Outcome{Tag: domain.TagClean}
		}
		return consensus.Outcome{
			Tag: domain.TagConsensus,
			Verdict: consensus.Verdict{
				HasVulnerability: true,
				Kind:             domain.KindBOLA,
				Confidence:       86,
				Reasoning:        "[Consensus] no ownership check",
			},
		}
	}}
	st := &memStore{}
	o := New(st, engine, Config{ArchiveBaseURL: srv.URL})

	result, err := o.Run(context.Background(), domain.ScanJob{Repo: "acme/api", Branch: "main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Vulnerabilities) == 0 {
		t.Fatal("expected at least one vulnerability")
	}
	v := result.Vulnerabilities[0]
	if v.Kind != domain.KindBOLA || v.Confidence != 86 || v.ValidatedBy != domain.TagConsensus {
		t.Errorf("unexpected vulnerability: %+v", v)
	}
	if result.Score != 79 || result.Severity != domain.SeverityMedium {
		t.Errorf("expected 79/Medium for one BOLA at 86, got %d/%s", result.Score, result.Severity)
	}
	if v.Method != "GET" || v.Path != "/users/{id}" {
		t.Errorf("vulnerability should map back to its endpoint, got %s %s", v.Method, v.Path)
	}
	if result.DriftDelta == 0 {
		t.Error("drift delta should count extracted items")
	}
}

func TestRunDropsLowConfidenceAndNegativeTags(t *testing.T) {
	files := map[string]string{}
	files["app.py"] = vulnerableHandler
	srv := archiveServer(t, map[string][]byte{"main": repoZip(t, files)})
	defer srv.Close()

	engine := &stubEngine{analyze: func(item domain.CodeItem) consensus.Outcome {
		return consensus.Outcome{
			Tag: domain.TagConsensus,
			Verdict: consensus.Verdict{
				HasVulnerability: true,
				Kind:             domain.KindIDOR,
				Confidence:       55, // at the floor, not above it
			},
		}
	}}
	st := &memStore{}
	o := New(st, engine, Config{ArchiveBaseURL: srv.URL})

	result, err := o.Run(context.Background(), domain.ScanJob{Repo: "acme/api", Branch: "main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Vulnerabilities) != 0 {
		t.Errorf("confidence 55 must not persist, got %d vulns", len(result.Vulnerabilities))
	}
}

func TestRunConcurrencyCap(t *testing.T) {
	files := map[string]string{}
	// Twenty distinct endpoints to saturate the fan-out.
	for i := 0; i < 20; i++ {
		name := string(rune('a' + i))
		files[name+".py"] = strings.ReplaceAll(vulnerableHandler, "/users/{id}", "/"+name+"/{id}")
	}
	srv := archiveServer(t, map[string][]byte{"main": repoZip(t, files)})
	defer srv.Close()

	engine := &stubEngine{}
	o := New(&memStore{}, engine, Config{ArchiveBaseURL: srv.URL, MaxConcurrent: 5})

	if _, err := o.Run(context.Background(), domain.ScanJob{Repo: "acme/api", Branch: "main"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.maxSeen > 5 {
		t.Errorf("observed %d concurrent reviews, cap is 5", engine.maxSeen)
	}
}

func TestRunSkipsExcludedDirs(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"main": repoZip(t, map[string]string{
			"tests/test_app.py": vulnerableHandler,
			"venv/lib/x.py":     vulnerableHandler,
		}),
	})
	defer srv.Close()

	seen := 0
	engine := &stubEngine{analyze: func(item domain.CodeItem) consensus.Outcome {
		seen++
		return consensus.Outcome{Tag: domain.TagClean}
	}}
	st := &memStore{}
	o := New(st, engine, Config{ArchiveBaseURL: srv.URL})

	result, err := o.Run(context.Background(), domain.ScanJob{Repo: "acme/api", Branch: "main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != 0 {
		t.Errorf("skip policy violated: %d items reviewed", seen)
	}
	if result.DriftDelta != 0 {
		t.Errorf("skipped files must not count as drift, got %d", result.DriftDelta)
	}
}
