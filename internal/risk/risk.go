// Package risk derives the integrity score and severity band for a scan.
package risk

import "github.com/sentinelai/sentinel/internal/domain"

// penalty weights per vulnerability kind. Unlisted non-None kinds cost 5.
var penalties = map[domain.VulnKind]int{
	domain.KindBOLA:                   25,
	domain.KindIDOR:                   20,
	domain.KindPrivilegeEscalation:    20,
	domain.KindMissingAuthentication:  15,
	domain.KindMissingRoleGuard:       10,
	domain.KindInconsistentMiddleware: 8,
}

const defaultPenalty = 5

// Score computes the integrity score for a vulnerability list. 100 means no
// confirmed findings; each finding subtracts its kind penalty weighted by
// confidence. The result is clamped to [0, 100].
func Score(vulns []domain.Vulnerability) int {
	score := 100
	for _, v := range vulns {
		weight, ok := penalties[v.Kind]
		if !ok {
			weight = defaultPenalty
		}
		score -= weight * v.Confidence / 100
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Band maps a score to its severity band.
func Band(score int) domain.Severity {
	switch {
	case score <= 30:
		return domain.SeverityCritical
	case score <= 60:
		return domain.SeverityHigh
	case score <= 80:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// Assess returns both the score and its band.
func Assess(vulns []domain.Vulnerability) (int, domain.Severity) {
	score := Score(vulns)
	return score, Band(score)
}
