// Package consensus merges multiple reviewer opinions into one verdict with
// a provenance tag.
package consensus

import (
	"context"
	"strings"
	"sync"

	"github.com/sentinelai/sentinel/internal/domain"
	"github.com/sentinelai/sentinel/internal/llm"
	"github.com/sentinelai/sentinel/internal/logging"
	"github.com/sentinelai/sentinel/internal/metrics"
)

// Outcome is the engine's result for one item.
type Outcome struct {
	Tag     string
	Verdict Verdict
}

// Positive reports whether downstream consumers treat this outcome as a
// confirmed-finding signal.
func (o Outcome) Positive() bool {
	return domain.PositiveTags[o.Tag]
}

// Engine fans one item out to both reviewers and optionally the validator.
type Engine struct {
	primary   llm.Completer
	secondary llm.Completer
	validator *llm.Validator
}

// NewEngine wires the reviewer backends.
func NewEngine(primary, secondary llm.Completer, validator *llm.Validator) *Engine {
	return &Engine{primary: primary, secondary: secondary, validator: validator}
}

// Analyze reviews one item. Reviewer failures never propagate: each backend
// contributes an opinion or nil, and Decide reduces whatever survived.
func (e *Engine) Analyze(ctx context.Context, item domain.CodeItem) Outcome {
	if strings.TrimSpace(item.Code) == "" {
		return Outcome{Tag: domain.TagSkipped, Verdict: nullVerdict()}
	}

	prompt := DetectionPrompt(item)

	var a, b *Verdict
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a = e.callOnce(ctx, e.primary, prompt)
	}()
	go func() {
		defer wg.Done()
		b = e.callOnce(ctx, e.secondary, prompt)
	}()
	wg.Wait()

	var val *Verdict
	if e.validator != nil && e.validator.Available() && (a != nil || b != nil) {
		text, err := e.validator.Complete(ctx, ValidationPrompt(item.Code, a, b))
		if err != nil {
			logging.Op().Warn("validator call failed", "error", err)
		} else if val = ParseVerdict(text); val != nil {
			logging.Op().Info("validator verdict", "kind", val.Kind, "confidence", val.Confidence)
		}
	}

	out := Decide(a, b, val)
	metrics.VerdictReached(out.Tag)
	return out
}

// callOnce runs a single-attempt reviewer call and parses the result.
// Returns nil on any failure.
func (e *Engine) callOnce(ctx context.Context, c llm.Completer, prompt string) *Verdict {
	if c == nil {
		return nil
	}
	text, err := c.Complete(ctx, prompt)
	if err != nil {
		metrics.ReviewerRequest(c.Name(), "error")
		logging.Op().Warn("reviewer unavailable", "backend", c.Name(), "error", err)
		return nil
	}
	v := ParseVerdict(text)
	if v == nil {
		metrics.ReviewerRequest(c.Name(), "unparseable")
		logging.Op().Warn("reviewer returned unparseable response",
			"backend", c.Name(), "head", head(text, 100))
		return nil
	}
	metrics.ReviewerRequest(c.Name(), "ok")
	logging.Op().Info("reviewer verdict",
		"backend", c.Name(), "kind", v.Kind, "confidence", v.Confidence)
	return v
}

// Decide reduces the two reviewer opinions and the optional validator
// opinion to one verdict. Rules are evaluated strictly in order.
func Decide(a, b, validator *Verdict) Outcome {
	// Validator wins when it produced a parseable, confident verdict.
	if validator != nil && validator.Confidence > 50 {
		return Outcome{Tag: domain.TagGeminiValidated, Verdict: normalize(*validator)}
	}

	switch {
	case a == nil && b == nil:
		return Outcome{Tag: domain.TagAllFailed, Verdict: nullVerdict()}

	case a == nil || b == nil:
		// Single witness: flag only on high confidence.
		survivor := a
		if survivor == nil {
			survivor = b
		}
		if survivor.flags() && survivor.Confidence > 70 {
			return Outcome{Tag: domain.TagFallbackMistral, Verdict: normalize(*survivor)}
		}
		return Outcome{Tag: domain.TagClean, Verdict: nullVerdict()}
	}

	aFlags, bFlags := a.flags(), b.flags()

	switch {
	case aFlags && bFlags && a.Kind == b.Kind:
		// Agreement: mean confidence with a 15% bonus, capped at 100.
		mean := float64(a.Confidence+b.Confidence) / 2
		conf := int(mean * 1.15)
		if conf > 100 {
			conf = 100
		}
		higher := a
		if b.Confidence > a.Confidence {
			higher = b
		}
		return Outcome{Tag: domain.TagConsensus, Verdict: Verdict{
			HasVulnerability: true,
			Kind:             a.Kind,
			Confidence:       conf,
			Reasoning:        "[Consensus] " + higher.Reasoning,
		}}

	case !aFlags && !bFlags:
		return Outcome{Tag: domain.TagClean, Verdict: nullVerdict()}

	case aFlags && bFlags:
		// Both flag but disagree on kind: penalize the stronger opinion.
		best := a
		if b.Confidence > a.Confidence {
			best = b
		}
		conf := int(float64(best.Confidence) * 0.85)
		if conf > 60 {
			return Outcome{Tag: domain.TagJudged, Verdict: Verdict{
				HasVulnerability: true,
				Kind:             best.Kind,
				Confidence:       conf,
				Reasoning:        "[Disagreement: models differ on type] " + best.Reasoning,
			}}
		}
		return Outcome{Tag: domain.TagClean, Verdict: nullVerdict()}

	default:
		// Split vote: one flags, one clean.
		flagger := a
		if bFlags {
			flagger = b
		}
		if flagger.Confidence > 75 {
			v := normalize(*flagger)
			v.Reasoning = "[Split vote — high confidence] " + flagger.Reasoning
			return Outcome{Tag: domain.TagJudged, Verdict: v}
		}
		return Outcome{Tag: domain.TagClean, Verdict: nullVerdict()}
	}
}

// normalize enforces the kind/confidence invariant: a None verdict carries
// has_vulnerability=false and confidence 0.
func normalize(v Verdict) Verdict {
	if v.Kind == domain.KindNone || !v.HasVulnerability {
		v.HasVulnerability = false
		v.Kind = domain.KindNone
		v.Confidence = 0
	}
	return v
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
