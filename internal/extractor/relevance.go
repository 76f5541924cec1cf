package extractor

import (
	"path/filepath"
	"strings"

	"github.com/sentinelai/sentinel/internal/domain"
)

// skipDirs are directory components that never contain reviewable code.
var skipDirs = map[string]bool{
	"__pycache__":  true,
	".git":         true,
	"venv":         true,
	"env":          true,
	".venv":        true,
	"node_modules": true,
	"migrations":   true,
	"tests":        true,
	"test":         true,
}

// skipFiles are file names excluded regardless of location.
var skipFiles = map[string]bool{
	"setup.py":    true,
	"conftest.py": true,
}

// authKeywords mark a function as worth sending to the reviewers.
var authKeywords = []string{
	"user", "admin", "role", "permission", "auth", "token",
	"db.query", "session.query",
	"current_user", "owner", "access", "privilege",
	"delete", "update", "create", "write", "modify",
	"httpexception",
}

// minRelevantLines is the minimum source span for a non-endpoint function to
// qualify for review.
const minRelevantLines = 5

// ShouldSkip reports whether a repo-relative path is excluded by the skip
// policy.
func ShouldSkip(relPath string) bool {
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if skipDirs[part] {
			return true
		}
	}
	return skipFiles[filepath.Base(relPath)]
}

// Relevant reports whether an item should be submitted for review. Endpoints
// always qualify; other functions must be at least five lines and mention an
// auth-adjacent token.
func (p *Parser) Relevant(item domain.CodeItem) bool {
	if item.IsEndpoint {
		return true
	}
	code := strings.ToLower(item.Code)
	if len(strings.Split(code, "\n")) < minRelevantLines {
		return false
	}
	for _, kw := range authKeywords {
		if strings.Contains(code, kw) {
			return true
		}
	}
	return strings.Contains(code, strings.ToLower(p.marker))
}

// Filter returns the security-relevant subset of items, in order.
func (p *Parser) Filter(items []domain.CodeItem) []domain.CodeItem {
	var kept []domain.CodeItem
	for _, item := range items {
		if p.Relevant(item) {
			kept = append(kept, item)
		}
	}
	return kept
}
