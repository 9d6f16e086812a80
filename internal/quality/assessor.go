package quality

import (
	"regexp"
	"strings"
)

// Sub-score weights. Safety dominates: a response proposing a disallowed
// action should land low even when otherwise well formed.
const (
	weightCompleteness = 0.3
	weightSafety       = 0.4
	weightCoherence    = 0.2
	weightRelevance    = 0.1
)

const (
	minResponseChars    = 200
	minSentences        = 3
	repetitionCeiling   = 0.5
	repetitionCappedAt  = 0.3
	relevanceFullCredit = 0.6 // overlap fraction worth a full relevance score
)

// structural markers a complete recommendation carries.
var markerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)reasoning`),
	regexp.MustCompile(`(?i)configuration`),
}

// disallowedActions force the safety sub-score to zero.
var disallowedActions = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf`),
	regexp.MustCompile(`(?i)drop\s+(table|database)`),
	regexp.MustCompile(`(?i)delete\s+all\s+(data|files|records|users)`),
	regexp.MustCompile(`(?i)format\s+(the\s+)?(disk|drive)`),
	regexp.MustCompile(`(?i)disable\s+(the\s+)?(firewall|antivirus|security|backups?)`),
	regexp.MustCompile(`(?i)bypass\s+(the\s+)?(auth|authentication|authorization|approval)`),
	regexp.MustCompile(`(?i)factory\s+reset`),
	regexp.MustCompile(`(?i)share\s+(the\s+)?(password|credentials|api\s+key)`),
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Assessor scores generated text on completeness, safety, coherence, and
// relevance. The score annotates a response for consensus weighting and
// monitoring; it never blocks the response from being returned.
type Assessor struct{}

func NewAssessor() *Assessor {
	return &Assessor{}
}

// Score returns a weighted quality score in [0, 1].
func (a *Assessor) Score(responseText, originalPrompt string) float64 {
	score := weightCompleteness*a.completeness(responseText) +
		weightSafety*a.safety(responseText) +
		weightCoherence*a.coherence(responseText) +
		weightRelevance*a.relevance(responseText, originalPrompt)
	return clamp01(score)
}

// completeness checks length against a threshold and the presence of the
// structural markers a recommendation should carry.
func (a *Assessor) completeness(text string) float64 {
	lengthScore := float64(len(text)) / minResponseChars
	if lengthScore > 1 {
		lengthScore = 1
	}

	markerScore := 0.0
	for _, p := range markerPatterns {
		if p.MatchString(text) {
			markerScore += 1.0 / float64(len(markerPatterns))
		}
	}

	return 0.5*lengthScore + 0.5*markerScore
}

// safety is zero tolerance: any disallowed-action match zeroes the sub-score.
func (a *Assessor) safety(text string) float64 {
	for _, p := range disallowedActions {
		if p.MatchString(text) {
			return 0
		}
	}
	return 1
}

// coherence requires a minimum sentence count and penalizes repetition.
// Exceeding the repetition ceiling caps the sub-score rather than zeroing it.
func (a *Assessor) coherence(text string) float64 {
	sentences := 0
	for _, s := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}

	score := float64(sentences) / minSentences
	if score > 1 {
		score = 1
	}

	if repetitionRatio(text) > repetitionCeiling && score > repetitionCappedAt {
		score = repetitionCappedAt
	}
	return score
}

// relevance measures lexical overlap between prompt and response.
func (a *Assessor) relevance(text, prompt string) float64 {
	promptWords := contentWords(prompt)
	if len(promptWords) == 0 {
		return 1
	}

	responseWords := make(map[string]bool)
	for _, w := range contentWords(text) {
		responseWords[w] = true
	}

	matched := 0
	for _, w := range promptWords {
		if responseWords[w] {
			matched++
		}
	}

	overlap := float64(matched) / float64(len(promptWords))
	return clamp01(overlap / relevanceFullCredit)
}

// repetitionRatio is the fraction of words that are repeats.
func repetitionRatio(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]bool, len(words))
	for _, w := range words {
		unique[w] = true
	}
	return 1 - float64(len(unique))/float64(len(words))
}

// contentWords drops short function words before overlap comparison.
func contentWords(text string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
