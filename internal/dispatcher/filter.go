package dispatcher

import "github.com/sentinelai/sentinel/internal/domain"

// qualifyingSeverities are the scan severities that produce tickets at all.
var qualifyingSeverities = map[domain.Severity]bool{
	domain.SeverityHigh:     true,
	domain.SeverityCritical: true,
}

// ticketKinds are the vulnerability kinds that qualify regardless of scan
// severity (within the qualifying set). Anything else qualifies only when the
// scan itself is Critical.
var ticketKinds = map[domain.VulnKind]bool{
	domain.KindBOLA:                   true,
	domain.KindIDOR:                   true,
	domain.KindMissingAuthentication:  true,
	domain.KindPrivilegeEscalation:    true,
	domain.KindMissingRoleGuard:       true,
	domain.KindInconsistentMiddleware: true,
}

// confidenceThreshold is the minimum confidence for ticket creation.
const confidenceThreshold = 55

// IndexedVulnerability pairs a vulnerability with its position in the scan's
// original list; the index is persisted on the ticket row.
type IndexedVulnerability struct {
	Index int
	Vuln  domain.Vulnerability
}

// Qualifies applies the dispatcher's severity+confidence+kind filter.
func Qualifies(vuln domain.Vulnerability, scanSeverity domain.Severity) bool {
	if !qualifyingSeverities[scanSeverity] {
		return false
	}
	if vuln.Confidence < confidenceThreshold {
		return false
	}
	if ticketKinds[vuln.Kind] {
		return true
	}
	return scanSeverity == domain.SeverityCritical
}

// FilterQualifying returns the qualifying vulnerabilities in original order.
func FilterQualifying(vulns []domain.Vulnerability, scanSeverity domain.Severity) []IndexedVulnerability {
	var qualifying []IndexedVulnerability
	for i, v := range vulns {
		if Qualifies(v, scanSeverity) {
			qualifying = append(qualifying, IndexedVulnerability{Index: i, Vuln: v})
		}
	}
	return qualifying
}
