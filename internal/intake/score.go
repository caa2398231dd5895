package intake

import (
	"strings"

	"github.com/jmorrell2146/applyflow/internal/config"
	"github.com/jmorrell2146/applyflow/internal/model"
)

// Scorer computes the relevance score for a raw job: a weighted sum of
// independent signals, each clamped to [0,1] before weighting, final
// score clamped to [0,1]. Re-scoring overwrites the stored score; it is
// never averaged with history.
type Scorer struct {
	cfg config.ScoringConfig

	tierSet map[string]bool
}

// NewScorer builds a scorer from the configured signals and weights.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	tiers := make(map[string]bool, len(cfg.TierCompanies))
	for _, c := range cfg.TierCompanies {
		tiers[normalize(c)] = true
	}
	return &Scorer{cfg: cfg, tierSet: tiers}
}

// Score computes the relevance score for raw.
func (s *Scorer) Score(raw model.RawJob) float64 {
	title := strings.ToLower(raw.Title)
	text := title + " " + strings.ToLower(raw.Description)

	score := s.cfg.KeywordWeight*s.keywordSignal(text) +
		s.cfg.SeniorityWeight*s.senioritySignal(title) +
		s.cfg.TierWeight*s.tierSignal(raw.Company) +
		s.cfg.RemoteWeight*s.remoteSignal(raw) +
		s.cfg.SalaryWeight*s.salarySignal(raw)

	return clamp01(score)
}

// keywordSignal is the fraction of configured high-value terms present
// in the title + description.
func (s *Scorer) keywordSignal(text string) float64 {
	if len(s.cfg.Keywords) == 0 {
		return 0
	}
	matched := 0
	for _, kw := range s.cfg.Keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			matched++
		}
	}
	return clamp01(float64(matched) / float64(len(s.cfg.Keywords)))
}

// senioritySignal is 1 when any configured seniority term appears in
// the title.
func (s *Scorer) senioritySignal(title string) float64 {
	for _, term := range s.cfg.SeniorityTerms {
		if strings.Contains(title, strings.ToLower(term)) {
			return 1
		}
	}
	return 0
}

// tierSignal is 1 when the normalized company is in the configured tier
// list.
func (s *Scorer) tierSignal(company string) float64 {
	if s.tierSet[normalize(company)] {
		return 1
	}
	return 0
}

// remoteSignal is 1 when the posting matches the remote preference.
func (s *Scorer) remoteSignal(raw model.RawJob) float64 {
	if !s.cfg.PreferRemote {
		return 0
	}
	if raw.Remote || strings.Contains(strings.ToLower(raw.Location), "remote") {
		return 1
	}
	return 0
}

// salarySignal is 1 when the posting's range clears the configured
// floor. With no floor configured every posting clears it; with a floor
// and no salary data the signal is 0.
func (s *Scorer) salarySignal(raw model.RawJob) float64 {
	if s.cfg.SalaryFloor <= 0 {
		return 1
	}
	if raw.SalaryMax >= s.cfg.SalaryFloor || raw.SalaryMin >= s.cfg.SalaryFloor {
		return 1
	}
	return 0
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
