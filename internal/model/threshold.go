package model

// PatternThreshold pairs a URL pattern with its change threshold. Patterns
// containing "*" are wildcard globs; all others match by substring.
type PatternThreshold struct {
	Pattern   string  `json:"pattern" yaml:"pattern" mapstructure:"pattern"`
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
}

// ThresholdConfig is the tiered change-significance configuration.
// PerURLPattern is ordered: the first matching entry wins.
type ThresholdConfig struct {
	Global        float64            `json:"global" yaml:"global" mapstructure:"global"`
	PerEntity     map[string]float64 `json:"per_entity" yaml:"per_entity" mapstructure:"per_entity"`
	PerURLPattern []PatternThreshold `json:"per_url_pattern" yaml:"per_url_pattern" mapstructure:"per_url_pattern"`
}
