package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the applyflow pipeline.
type Config struct {
	StorePath       string
	PollingInterval time.Duration
	ScanLookback    time.Duration
	ReviewThreshold float64

	// AutoDispatch lets the daemon send approved applications without
	// an operator trigger. Off by default; auto_review approving a
	// record never implies consent to send it.
	AutoDispatch bool

	AutoReview AutoReviewConfig
	Scoring    ScoringConfig
	Feeds      []FeedConfig
	Mailer     MailerConfig
	Sender     SenderConfig
	FollowUp   FollowUpConfig

	Log LogConfig
}

// LogConfig controls slog handler construction.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, text, json
}

// AutoReviewConfig controls the deterministic approval policy. The
// policy still goes through the same review transition as a human.
type AutoReviewConfig struct {
	Enabled   bool
	Threshold float64 // minimum relevance score for auto-approval
}

// ScoringConfig holds the relevance-score signals and weights. Each
// signal is clamped to [0,1] before weighting; the final score is
// clamped to [0,1].
type ScoringConfig struct {
	Keywords        []string
	KeywordWeight   float64
	SeniorityTerms  []string
	SeniorityWeight float64
	TierCompanies   []string
	TierWeight      float64
	PreferRemote    bool
	RemoteWeight    float64
	SalaryFloor     int64
	SalaryWeight    float64
}

// FeedConfig describes a single raw-job source.
type FeedConfig struct {
	Type       string `yaml:"type"` // "file" or "greenhouse"
	Name       string `yaml:"name"`
	Path       string `yaml:"path"`        // file feed
	BoardToken string `yaml:"board_token"` // greenhouse feed
	Company    string `yaml:"company"`     // greenhouse feed
	Enabled    bool   `yaml:"enabled"`
}

// MailerConfig selects and tunes the mail capability.
type MailerConfig struct {
	Type         string // "log" or "dir"
	Dir          string // drop directory for the dir mailer
	Timeout      time.Duration
	MinSendDelay time.Duration
}

// SenderConfig is the operator identity used in outbound materials.
type SenderConfig struct {
	Name           string            `yaml:"name"`
	Email          string            `yaml:"email"`
	ResumeDir      string            `yaml:"resume_dir"`
	DefaultVariant string            `yaml:"default_variant"`
	Variants       map[string]string `yaml:"variants"` // title keyword -> variant
}

// FollowUpConfig bounds follow-up emission.
type FollowUpConfig struct {
	MinAge   time.Duration
	MaxCount int
}

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	StorePath       string        `yaml:"store_path"`
	PollingInterval string        `yaml:"polling_interval"`
	ScanLookback    string        `yaml:"scan_lookback"`
	ReviewThreshold *float64      `yaml:"review_threshold"`
	AutoDispatch    bool          `yaml:"auto_dispatch"`
	AutoReview      rawAutoReview `yaml:"auto_review"`
	Scoring         rawScoring    `yaml:"scoring"`
	Feeds           []FeedConfig  `yaml:"feeds"`
	Mailer          rawMailer     `yaml:"mailer"`
	Sender          SenderConfig  `yaml:"sender"`
	FollowUp        rawFollowUp   `yaml:"follow_up"`
	Log             LogConfig     `yaml:"log"`
}

type rawAutoReview struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold *float64 `yaml:"threshold"`
}

type rawScoring struct {
	Keywords        []string `yaml:"keywords"`
	KeywordWeight   *float64 `yaml:"keyword_weight"`
	SeniorityTerms  []string `yaml:"seniority_terms"`
	SeniorityWeight *float64 `yaml:"seniority_weight"`
	TierCompanies   []string `yaml:"tier_companies"`
	TierWeight      *float64 `yaml:"tier_weight"`
	PreferRemote    bool     `yaml:"prefer_remote"`
	RemoteWeight    *float64 `yaml:"remote_weight"`
	SalaryFloor     int64    `yaml:"salary_floor"`
	SalaryWeight    *float64 `yaml:"salary_weight"`
}

type rawMailer struct {
	Type         string `yaml:"type"`
	Dir          string `yaml:"dir"`
	Timeout      string `yaml:"timeout"`
	MinSendDelay string `yaml:"min_send_delay"`
}

type rawFollowUp struct {
	MinAge   string `yaml:"min_age"`
	MaxCount *int   `yaml:"max_count"`
}

// Defaults, applied for every omitted knob. The scoring weights are a
// reasonable default, not a contract; tune them per preference.
const (
	defaultStorePath       = "applyflow.db"
	defaultReviewThreshold = 0.5
	defaultAutoThreshold   = 0.75
	defaultKeywordWeight   = 0.3
	defaultSeniorityWeight = 0.1
	defaultTierWeight      = 0.3
	defaultRemoteWeight    = 0.2
	defaultSalaryWeight    = 0.1
	defaultMaxFollowUps    = 2
)

// Load reads and parses the YAML config file at path, applies defaults,
// validates it, and returns Config. Environment variables in the file
// are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		StorePath:       raw.StorePath,
		ReviewThreshold: floatOr(raw.ReviewThreshold, defaultReviewThreshold),
		AutoDispatch:    raw.AutoDispatch,
		AutoReview: AutoReviewConfig{
			Enabled:   raw.AutoReview.Enabled,
			Threshold: floatOr(raw.AutoReview.Threshold, defaultAutoThreshold),
		},
		Scoring: ScoringConfig{
			Keywords:        raw.Scoring.Keywords,
			KeywordWeight:   floatOr(raw.Scoring.KeywordWeight, defaultKeywordWeight),
			SeniorityTerms:  raw.Scoring.SeniorityTerms,
			SeniorityWeight: floatOr(raw.Scoring.SeniorityWeight, defaultSeniorityWeight),
			TierCompanies:   raw.Scoring.TierCompanies,
			TierWeight:      floatOr(raw.Scoring.TierWeight, defaultTierWeight),
			PreferRemote:    raw.Scoring.PreferRemote,
			RemoteWeight:    floatOr(raw.Scoring.RemoteWeight, defaultRemoteWeight),
			SalaryFloor:     raw.Scoring.SalaryFloor,
			SalaryWeight:    floatOr(raw.Scoring.SalaryWeight, defaultSalaryWeight),
		},
		Feeds:  raw.Feeds,
		Sender: raw.Sender,
		Log:    raw.Log,
	}
	if cfg.StorePath == "" {
		cfg.StorePath = defaultStorePath
	}

	cfg.PollingInterval, err = durationOr(raw.PollingInterval, 1*time.Hour, "polling_interval")
	if err != nil {
		return nil, err
	}
	cfg.ScanLookback, err = durationOr(raw.ScanLookback, 24*time.Hour, "scan_lookback")
	if err != nil {
		return nil, err
	}

	cfg.Mailer.Type = raw.Mailer.Type
	if cfg.Mailer.Type == "" {
		cfg.Mailer.Type = "log"
	}
	cfg.Mailer.Dir = raw.Mailer.Dir
	cfg.Mailer.Timeout, err = durationOr(raw.Mailer.Timeout, 30*time.Second, "mailer.timeout")
	if err != nil {
		return nil, err
	}
	cfg.Mailer.MinSendDelay, err = durationOr(raw.Mailer.MinSendDelay, 45*time.Second, "mailer.min_send_delay")
	if err != nil {
		return nil, err
	}

	cfg.FollowUp.MinAge, err = durationOr(raw.FollowUp.MinAge, 72*time.Hour, "follow_up.min_age")
	if err != nil {
		return nil, err
	}
	cfg.FollowUp.MaxCount = defaultMaxFollowUps
	if raw.FollowUp.MaxCount != nil {
		cfg.FollowUp.MaxCount = *raw.FollowUp.MaxCount
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func floatOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

func durationOr(raw string, def time.Duration, field string) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

func validate(cfg *Config) error {
	if cfg.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be positive, got %v", cfg.PollingInterval)
	}
	if cfg.ReviewThreshold < 0 || cfg.ReviewThreshold > 1 {
		return fmt.Errorf("review_threshold must be within [0,1], got %v", cfg.ReviewThreshold)
	}
	if cfg.AutoReview.Threshold < 0 || cfg.AutoReview.Threshold > 1 {
		return fmt.Errorf("auto_review.threshold must be within [0,1], got %v", cfg.AutoReview.Threshold)
	}

	s := cfg.Scoring
	sum := s.KeywordWeight + s.SeniorityWeight + s.TierWeight + s.RemoteWeight + s.SalaryWeight
	if sum > 1.0+1e-9 {
		return fmt.Errorf("scoring weights must sum to at most 1.0, got %v", sum)
	}
	for name, w := range map[string]float64{
		"keyword_weight":   s.KeywordWeight,
		"seniority_weight": s.SeniorityWeight,
		"tier_weight":      s.TierWeight,
		"remote_weight":    s.RemoteWeight,
		"salary_weight":    s.SalaryWeight,
	} {
		if w < 0 {
			return fmt.Errorf("scoring.%s must not be negative", name)
		}
	}

	for i, f := range cfg.Feeds {
		if !f.Enabled {
			continue
		}
		switch f.Type {
		case "file":
			if f.Path == "" {
				return fmt.Errorf("feeds[%d]: path is required for file feeds", i)
			}
		case "greenhouse":
			if f.BoardToken == "" {
				return fmt.Errorf("feeds[%d]: board_token is required for greenhouse feeds", i)
			}
			if f.Company == "" {
				return fmt.Errorf("feeds[%d]: company is required for greenhouse feeds", i)
			}
		default:
			return fmt.Errorf("feeds[%d]: unsupported feed type %q", i, f.Type)
		}
	}

	switch cfg.Mailer.Type {
	case "log":
	case "dir":
		if cfg.Mailer.Dir == "" {
			return fmt.Errorf("mailer.dir is required when mailer.type is \"dir\"")
		}
	default:
		return fmt.Errorf("unsupported mailer.type %q", cfg.Mailer.Type)
	}
	if cfg.Mailer.Timeout <= 0 {
		return fmt.Errorf("mailer.timeout must be positive, got %v", cfg.Mailer.Timeout)
	}

	if cfg.FollowUp.MaxCount < 0 {
		return fmt.Errorf("follow_up.max_count must not be negative, got %d", cfg.FollowUp.MaxCount)
	}

	return nil
}
