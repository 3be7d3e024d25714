package config

// ProbeSpec holds the probe parameters rendered into deployment manifests.
// All values are seconds except FailureThreshold, which is a count.
type ProbeSpec struct {
	InitialDelaySeconds int `yaml:"initialDelaySeconds,omitempty"`
	PeriodSeconds       int `yaml:"periodSeconds,omitempty"`
	TimeoutSeconds      int `yaml:"timeoutSeconds,omitempty"`
	FailureThreshold    int `yaml:"failureThreshold,omitempty"`
}

// ProbeOverrides carries per-service probe overrides from services.yaml.
// Zero fields fall back to the tier defaults.
type ProbeOverrides struct {
	Liveness  *ProbeSpec `yaml:"liveness,omitempty"`
	Readiness *ProbeSpec `yaml:"readiness,omitempty"`
}

// ProbeParams is the fully resolved pair of probes for one service.
type ProbeParams struct {
	Liveness  ProbeSpec
	Readiness ProbeSpec
}

// Per-tier probe defaults.
var tierProbeDefaults = map[Tier]ProbeParams{
	TierDatabase: {
		Liveness:  ProbeSpec{InitialDelaySeconds: 30, PeriodSeconds: 10, TimeoutSeconds: 5, FailureThreshold: 3},
		Readiness: ProbeSpec{InitialDelaySeconds: 20, PeriodSeconds: 5, TimeoutSeconds: 3, FailureThreshold: 2},
	},
	TierApplication: {
		Liveness:  ProbeSpec{InitialDelaySeconds: 40, PeriodSeconds: 15, TimeoutSeconds: 5, FailureThreshold: 3},
		Readiness: ProbeSpec{InitialDelaySeconds: 20, PeriodSeconds: 5, TimeoutSeconds: 3, FailureThreshold: 2},
	},
}

// ProbeParams resolves the service's probe parameters: the tier defaults
// overlaid with any non-zero override fields.
func (s *Service) ProbeParams() ProbeParams {
	params := tierProbeDefaults[s.EffectiveTier()]
	if s.Probes != nil {
		overlayProbe(&params.Liveness, s.Probes.Liveness)
		overlayProbe(&params.Readiness, s.Probes.Readiness)
	}
	return params
}

func overlayProbe(base *ProbeSpec, override *ProbeSpec) {
	if override == nil {
		return
	}
	if override.InitialDelaySeconds > 0 {
		base.InitialDelaySeconds = override.InitialDelaySeconds
	}
	if override.PeriodSeconds > 0 {
		base.PeriodSeconds = override.PeriodSeconds
	}
	if override.TimeoutSeconds > 0 {
		base.TimeoutSeconds = override.TimeoutSeconds
	}
	if override.FailureThreshold > 0 {
		base.FailureThreshold = override.FailureThreshold
	}
}
