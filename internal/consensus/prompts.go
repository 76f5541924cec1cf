package consensus

import (
	"fmt"
	"strings"

	"github.com/sentinelai/sentinel/internal/domain"
)

const detectionPrompt = `Security analysis task. Analyze this Python function for authorization vulnerabilities.

Vulnerability types (pick ONE that fits best, or None):
- BOLA: accesses DB object by user-supplied ID without ownership check
- IDOR: user-supplied param references object without auth check
- Privilege Escalation: changes role/permission from user input without admin check
- Missing Role Guard: HTTP endpoint with no dependency/role check, exposes sensitive data
- Missing Authentication: no identity verification before data access
- None: code is secure

Function: %s | Method: %s | Path: %s
Guards: [%s] | Args: [%s]

CODE:
%s

Reply ONLY with this JSON (no markdown, one short sentence for reasoning):
{"has_vulnerability": true, "vulnerability_type": "BOLA", "confidence": 85, "reasoning": "sentence"}
`

const validationPrompt = `You are a security validation engine. Analyze findings from two AI models.
Produce a final verdict. Be conservative — only confirm with solid evidence.

CODE:
%s

REVIEWER A: %s
REVIEWER B: %s

Output ONLY this JSON (no markdown):
{"has_vulnerability": true, "vulnerability_type": "string", "confidence": 0, "reasoning": "sentence"}
`

// DetectionPrompt renders the reviewer prompt for one item.
func DetectionPrompt(item domain.CodeItem) string {
	method := item.Method
	if method == "" {
		method = domain.MethodFunction
	}
	path := item.Path
	if path == "" {
		path = item.FilePath
	}
	return fmt.Sprintf(detectionPrompt,
		item.FunctionName, method, path,
		strings.Join(item.Guards, ", "),
		strings.Join(item.Arguments, ", "),
		item.Code,
	)
}

// ValidationPrompt renders the validator prompt from both raw opinions.
// Unparsed or missing opinions render as "unavailable".
func ValidationPrompt(code string, a, b *Verdict) string {
	return fmt.Sprintf(validationPrompt, code, renderOpinion(a), renderOpinion(b))
}

func renderOpinion(v *Verdict) string {
	if v == nil {
		return "unavailable"
	}
	return fmt.Sprintf(`{"has_vulnerability": %t, "vulnerability_type": %q, "confidence": %d, "reasoning": %q}`,
		v.HasVulnerability, v.Kind, v.Confidence, v.Reasoning)
}
