package experiment

import "sync"

// ShadowStats summarizes how a shadow policy compares to live routing.
type ShadowStats struct {
	// Requests is how many requests the shadow policy scored.
	Requests int64 `json:"requests"`

	// Agreements is how often the shadow pick matched the live pick.
	Agreements int64 `json:"agreements"`

	// AgreementRate is Agreements / Requests, 0 when empty.
	AgreementRate float64 `json:"agreement_rate"`

	// MeanLiveReward is the average realized reward of live decisions.
	MeanLiveReward float64 `json:"mean_live_reward"`

	// MeanShadowEstimate is the average reward the shadow policy estimated
	// for its own picks. Comparing it to MeanLiveReward previews whether
	// the shadow policy is over- or under-promising.
	MeanShadowEstimate float64 `json:"mean_shadow_estimate"`
}

// Scoreboard accumulates shadow-mode observations. Shadow selections are
// scored but never dispatched, so the scoreboard is their only output.
type Scoreboard struct {
	mu                sync.Mutex
	requests          int64
	agreements        int64
	liveRewardSum     float64
	shadowEstimateSum float64
}

// NewScoreboard creates an empty scoreboard.
func NewScoreboard() *Scoreboard {
	return &Scoreboard{}
}

// Record scores one shadow selection against the live decision's realized
// reward.
func (s *Scoreboard) Record(liveArmID, shadowArmID string, liveReward, shadowEstimate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests++
	if liveArmID == shadowArmID {
		s.agreements++
	}
	s.liveRewardSum += liveReward
	s.shadowEstimateSum += shadowEstimate
}

// Stats returns the current summary.
func (s *Scoreboard) Stats() ShadowStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := ShadowStats{
		Requests:   s.requests,
		Agreements: s.agreements,
	}
	if s.requests > 0 {
		stats.AgreementRate = float64(s.agreements) / float64(s.requests)
		stats.MeanLiveReward = s.liveRewardSum / float64(s.requests)
		stats.MeanShadowEstimate = s.shadowEstimateSum / float64(s.requests)
	}
	return stats
}
