package monitor

import "time"

// Config tunes the orchestration engine. Zero values take defaults.
type Config struct {
	// BatchSize caps how many sites one scheduler run checks. Default: 10.
	BatchSize int
	// PaceInterval is the minimum spacing between checks in a batch, so a
	// run never hammers the capture backend. Default: 2s.
	PaceInterval time.Duration
	// LeaseTTL bounds how long a crashed check blocks its site. Default: 5m.
	LeaseTTL time.Duration

	// DailyCheckLimits maps plan -> checks per UTC day.
	DailyCheckLimits map[string]int
	// SiteLimits maps plan -> maximum monitored sites.
	SiteLimits map[string]int
	// TierWeights maps plan -> scheduling weight. A weight step dominates
	// any staleness difference (weights are multiplied by 1000 while
	// staleness contributes hours).
	TierWeights map[string]float64

	// NeverCheckedHours is the staleness score of a site with no prior
	// check, putting it ahead of every checked site in its tier.
	NeverCheckedHours float64

	// ServiceToken authenticates the scheduler trigger endpoint.
	ServiceToken string
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.PaceInterval <= 0 {
		c.PaceInterval = 2 * time.Second
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 5 * time.Minute
	}
	if c.DailyCheckLimits == nil {
		c.DailyCheckLimits = map[string]int{"free": 1, "pro": 5, "business": 999}
	}
	if c.SiteLimits == nil {
		c.SiteLimits = map[string]int{"free": 3, "pro": 10, "business": 100}
	}
	if c.TierWeights == nil {
		c.TierWeights = map[string]float64{"free": 1, "pro": 2, "business": 3}
	}
	if c.NeverCheckedHours <= 0 {
		c.NeverCheckedHours = 999
	}
}

// planOrFree normalizes unknown or empty plans to "free", the most
// restrictive tier.
func planOrFree(limits map[string]int, plan string) (string, int) {
	if v, ok := limits[plan]; ok {
		return plan, v
	}
	return "free", limits["free"]
}
