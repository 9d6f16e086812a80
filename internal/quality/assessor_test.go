package quality

import (
	"strings"
	"testing"
)

const goodResponse = `Reasoning: the office needs a router, a switch, and two access points
to cover both floors. Configuration: assign the guest network to its own VLAN
and keep the printer subnet isolated. This layout keeps the setup simple to
maintain. Each device should be labeled and documented after installation.`

func TestScore_WellFormedResponse(t *testing.T) {
	a := NewAssessor()
	score := a.Score(goodResponse, "Configure basic office setup with router and access points")
	if score < 0.7 {
		t.Errorf("expected well-formed response to score >= 0.7, got %f", score)
	}
}

func TestScore_DisallowedActionTanksScore(t *testing.T) {
	a := NewAssessor()
	unsafe := strings.Replace(goodResponse, "keep the printer subnet isolated",
		"disable the firewall to simplify access", 1)

	safeScore := a.Score(goodResponse, "configure office network")
	unsafeScore := a.Score(unsafe, "configure office network")

	if unsafeScore >= safeScore {
		t.Errorf("unsafe response (%f) must score below safe one (%f)", unsafeScore, safeScore)
	}
	// Safety is weighted 0.4, so zeroing it caps the total at 0.6.
	if unsafeScore > 0.6 {
		t.Errorf("expected unsafe response capped at 0.6, got %f", unsafeScore)
	}
	// But other sub-scores still count: it must not collapse to zero.
	if unsafeScore == 0 {
		t.Error("unsafe response should not score exactly zero")
	}
}

func TestScore_ShortResponseScoresLow(t *testing.T) {
	a := NewAssessor()
	score := a.Score("ok", "configure the office network")
	if score > 0.5 {
		t.Errorf("expected short, markerless response to score low, got %f", score)
	}
}

func TestCompleteness_Markers(t *testing.T) {
	a := NewAssessor()
	withMarkers := a.completeness("Reasoning: because. Configuration: like so." + strings.Repeat(" detail", 40))
	without := a.completeness("Just do it." + strings.Repeat(" detail", 40))
	if withMarkers <= without {
		t.Errorf("markers must raise completeness: with=%f without=%f", withMarkers, without)
	}
}

func TestCoherence_RepetitionCapped(t *testing.T) {
	a := NewAssessor()
	repetitive := strings.Repeat("setup setup setup. ", 10)
	if got := a.coherence(repetitive); got > repetitionCappedAt {
		t.Errorf("expected repetition cap %f, got %f", repetitionCappedAt, got)
	}

	varied := "First install the router. Then configure each access point separately. Finally verify coverage everywhere."
	if got := a.coherence(varied); got != 1 {
		t.Errorf("expected full coherence for varied text, got %f", got)
	}
}

func TestRelevance_Overlap(t *testing.T) {
	a := NewAssessor()
	relevant := a.relevance("install the office router near the office switch", "office router switch")
	unrelated := a.relevance("bake the cake at two hundred degrees", "office router switch")
	if relevant <= unrelated {
		t.Errorf("expected relevant > unrelated: %f vs %f", relevant, unrelated)
	}
}

func TestScore_Bounds(t *testing.T) {
	a := NewAssessor()
	tests := []struct{ text, prompt string }{
		{"", ""},
		{goodResponse, ""},
		{"", "prompt"},
		{strings.Repeat("word ", 10000), "prompt"},
	}
	for _, tt := range tests {
		got := a.Score(tt.text, tt.prompt)
		if got < 0 || got > 1 {
			t.Errorf("Score(%.20q, %.20q) = %f, out of [0,1]", tt.text, tt.prompt, got)
		}
	}
}
