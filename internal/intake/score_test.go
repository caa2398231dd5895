package intake

import (
	"math"
	"testing"

	"github.com/jmorrell2146/applyflow/internal/config"
	"github.com/jmorrell2146/applyflow/internal/model"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Keywords:        []string{"go", "distributed"},
		KeywordWeight:   0.3,
		SeniorityTerms:  []string{"senior", "staff"},
		SeniorityWeight: 0.1,
		TierCompanies:   []string{"Acme, Inc."},
		TierWeight:      0.3,
		PreferRemote:    true,
		RemoteWeight:    0.2,
		SalaryFloor:     150000,
		SalaryWeight:    0.1,
	}
}

func TestScore(t *testing.T) {
	scorer := NewScorer(testScoringConfig())

	tests := []struct {
		name string
		raw  model.RawJob
		want float64
	}{
		{
			name: "everything matches",
			raw: model.RawJob{
				Company:     "Acme",
				Title:       "Senior Engineer",
				Description: "go and distributed systems",
				Remote:      true,
				SalaryMax:   200000,
			},
			want: 1.0,
		},
		{
			name: "nothing matches",
			raw:  model.RawJob{Company: "Initech", Title: "Accountant"},
			want: 0,
		},
		{
			name: "half the keywords",
			raw:  model.RawJob{Company: "Initech", Title: "Go Developer"},
			want: 0.15,
		},
		{
			name: "remote inferred from location",
			raw:  model.RawJob{Company: "Initech", Title: "Clerk", Location: "Remote (US)"},
			want: 0.2,
		},
		{
			name: "salary floor cleared by min",
			raw:  model.RawJob{Company: "Initech", Title: "Clerk", SalaryMin: 160000},
			want: 0.1,
		},
		{
			name: "salary below floor",
			raw:  model.RawJob{Company: "Initech", Title: "Clerk", SalaryMin: 90000, SalaryMax: 120000},
			want: 0,
		},
		{
			name: "tier company matched through suffix",
			raw:  model.RawJob{Company: "ACME Inc", Title: "Clerk"},
			want: 0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(tt.raw)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreNoSalaryFloorAlwaysClears(t *testing.T) {
	cfg := testScoringConfig()
	cfg.SalaryFloor = 0
	scorer := NewScorer(cfg)

	got := scorer.Score(model.RawJob{Company: "Initech", Title: "Clerk"})
	if math.Abs(got-0.1) > 1e-9 {
		t.Errorf("Score = %v, want salary signal to pass with no floor", got)
	}
}
