// Package scan runs the end-to-end pipeline: fetch archive, extract items,
// fan out to the reviewers under a concurrency cap, reconcile, score,
// persist.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sentinelai/sentinel/internal/consensus"
	"github.com/sentinelai/sentinel/internal/domain"
	"github.com/sentinelai/sentinel/internal/extractor"
	"github.com/sentinelai/sentinel/internal/logging"
	"github.com/sentinelai/sentinel/internal/metrics"
	"github.com/sentinelai/sentinel/internal/risk"
)

// confidenceFloor is the minimum confidence a positive verdict needs to be
// persisted as a vulnerability.
const confidenceFloor = 55

// ResultStore is the slice of the store the orchestrator needs.
type ResultStore interface {
	SaveScanResult(ctx context.Context, result *domain.ScanResult) error
}

// Analyzer produces one verdict per item.
type Analyzer interface {
	Analyze(ctx context.Context, item domain.CodeItem) consensus.Outcome
}

// Config tunes one orchestrator instance.
type Config struct {
	ArchiveBaseURL string
	ArchiveTimeout time.Duration
	MaxConcurrent  int64
	Marker         string
}

// Orchestrator drives one scan at a time.
type Orchestrator struct {
	store          ResultStore
	engine         Analyzer
	parser         *extractor.Parser
	httpClient     *http.Client
	archiveBaseURL string
	maxConcurrent  int64
	log            *slog.Logger
}

// New wires an orchestrator.
func New(store ResultStore, engine Analyzer, cfg Config) *Orchestrator {
	if cfg.ArchiveBaseURL == "" {
		cfg.ArchiveBaseURL = "https://github.com"
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = 60 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	return &Orchestrator{
		store:          store,
		engine:         engine,
		parser:         extractor.New(cfg.Marker),
		httpClient:     &http.Client{Timeout: cfg.ArchiveTimeout},
		archiveBaseURL: cfg.ArchiveBaseURL,
		maxConcurrent:  cfg.MaxConcurrent,
		log:            logging.Op(),
	}
}

// Run executes one scan job and persists the result. The returned ScanResult
// carries the store-assigned id.
func (o *Orchestrator) Run(ctx context.Context, job domain.ScanJob) (*domain.ScanResult, error) {
	started := time.Now()
	o.log.Info("starting security scan", "repo", job.Repo, "branch", job.Branch, "commit", job.Commit)

	tmpDir, err := os.MkdirTemp("", "sentinel-scan-*")
	if err != nil {
		metrics.ScanCompleted("error", time.Since(started), 0)
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	archivePath, err := o.fetchArchive(ctx, tmpDir, job.Repo, job.Branch)
	if err != nil {
		metrics.ScanCompleted("error", time.Since(started), 0)
		return nil, fmt.Errorf("fetch archive: %w", err)
	}

	srcDir, err := extractZip(archivePath, tmpDir)
	if err != nil {
		metrics.ScanCompleted("error", time.Since(started), 0)
		return nil, fmt.Errorf("bad archive: %w", err)
	}

	allItems := o.collectItems(ctx, srcDir)
	relevant := o.parser.Filter(allItems)
	o.log.Info("extraction complete",
		"repo", job.Repo, "items", len(allItems), "relevant", len(relevant))

	var vulns []domain.Vulnerability
	if len(relevant) > 0 {
		vulns = o.review(ctx, relevant)
	}

	score, severity := risk.Assess(vulns)

	result := &domain.ScanResult{
		RepoName:        job.Repo,
		CommitHash:      commitOrLatest(job.Commit),
		Score:           score,
		DriftDelta:      len(allItems),
		Severity:        severity,
		Vulnerabilities: vulns,
	}
	if err := o.store.SaveScanResult(ctx, result); err != nil {
		metrics.ScanCompleted("error", time.Since(started), len(allItems))
		return nil, fmt.Errorf("persist scan result: %w", err)
	}

	metrics.ScanCompleted("success", time.Since(started), len(allItems))
	o.log.Info("scan complete",
		"repo", job.Repo, "score", score, "severity", severity,
		"vulnerabilities", len(vulns), "elapsed", time.Since(started))
	return result, nil
}

// collectItems walks the extracted tree and merges endpoint and function
// records under per-key uniqueness. Per-file parse errors are logged and the
// file is skipped; they never fail the scan.
func (o *Orchestrator) collectItems(ctx context.Context, srcDir string) []domain.CodeItem {
	var items []domain.CodeItem
	seen := make(map[string]bool)

	_ = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return nil
		}
		// The github archive nests everything under <repo>-<branch>/.
		if idx := strings.IndexByte(relPath, filepath.Separator); idx > 0 {
			relPath = relPath[idx+1:]
		}
		if extractor.ShouldSkip(relPath) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			o.log.Warn("read failed, skipping file", "file", relPath, "error", err)
			return nil
		}
		if len(strings.TrimSpace(string(content))) == 0 {
			return nil
		}

		endpoints, err := o.parser.Endpoints(ctx, content)
		if err != nil {
			o.log.Warn("parse failed, skipping file", "file", relPath, "error", err)
			return nil
		}
		for _, ep := range endpoints {
			ep.FilePath = relPath
			if key := ep.Key(); !seen[key] {
				seen[key] = true
				items = append(items, ep)
			}
		}

		funcs, err := o.parser.Functions(ctx, content, relPath)
		if err != nil {
			o.log.Warn("function extraction failed", "file", relPath, "error", err)
			return nil
		}
		for _, fn := range funcs {
			if key := fn.Key(); !seen[key] {
				seen[key] = true
				items = append(items, fn)
			}
		}
		return nil
	})
	return items
}

// review fans the relevant items out to the consensus engine, at most
// maxConcurrent in flight. Results are joined back by position, never by
// completion order, and an individual failure only loses that item.
func (o *Orchestrator) review(ctx context.Context, items []domain.CodeItem) []domain.Vulnerability {
	sem := semaphore.NewWeighted(o.maxConcurrent)
	outcomes := make([]consensus.Outcome, len(items))

	var wg sync.WaitGroup
	for i := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			o.log.Warn("review fan-out interrupted", "error", err)
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = o.engine.Analyze(ctx, items[i])
		}(i)
	}
	wg.Wait()

	var vulns []domain.Vulnerability
	for i, out := range outcomes {
		if !out.Positive() || !out.Verdict.HasVulnerability || out.Verdict.Confidence <= confidenceFloor {
			continue
		}
		item := items[i]
		vulns = append(vulns, domain.Vulnerability{
			FunctionName: item.FunctionName,
			Method:       item.Method,
			Path:         item.Path,
			FilePath:     item.FilePath,
			Kind:         out.Verdict.Kind,
			Confidence:   out.Verdict.Confidence,
			Reasoning:    out.Verdict.Reasoning,
			ValidatedBy:  out.Tag,
		})
	}
	return vulns
}

func commitOrLatest(commit string) string {
	if commit == "" {
		return "latest"
	}
	return commit
}
