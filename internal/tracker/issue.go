package tracker

import (
	"fmt"
	"strings"

	"github.com/sentinelai/sentinel/internal/domain"
)

// BuildIssueTitle renders the ticket summary line.
func BuildIssueTitle(severity domain.Severity, kind domain.VulnKind, repo string) string {
	return fmt.Sprintf("[Sentinel] %s - %s - %s", severity, kind, repo)
}

// BuildIssueDescription renders the wiki-markup ticket body from the
// vulnerability and its originating scan.
func BuildIssueDescription(vuln domain.Vulnerability, scan domain.ScanResult) string {
	lines := []string{
		fmt.Sprintf("*Vulnerability Type:* %s", vuln.Kind),
		fmt.Sprintf("*Severity Level:* %s", scan.Severity),
		fmt.Sprintf("*Risk Score:* %d", scan.Score),
		fmt.Sprintf("*Affected Endpoint / File:* %s", vuln.EndpointOrFile()),
		"",
		"*Attack Path Explanation:*",
		orNA(vuln.Reasoning),
		"",
		fmt.Sprintf("*Function:* %s", orNA(vuln.FunctionName)),
		fmt.Sprintf("*Method:* %s", orNA(vuln.Method)),
		fmt.Sprintf("*Confidence:* %d%%", vuln.Confidence),
		"",
		fmt.Sprintf("*Repository:* %s", orNA(scan.RepoName)),
		fmt.Sprintf("*Commit Hash:* %s", orNA(scan.CommitHash)),
		fmt.Sprintf("*Scan ID:* %d", scan.ID),
		"",
		"----",
		"_Generated automatically by the Sentinel tracker integration_",
	}
	return strings.Join(lines, "\n")
}

// BuildRecurrenceComment renders the comment added when a known
// vulnerability is detected again.
func BuildRecurrenceComment(vuln domain.Vulnerability, scan domain.ScanResult) string {
	return fmt.Sprintf(
		"Sentinel detected this vulnerability again.\nScan ID: %d\nCommit: %s\nConfidence: %d%%\nReasoning: %s",
		scan.ID, orNA(scan.CommitHash), vuln.Confidence, orNA(vuln.Reasoning))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
