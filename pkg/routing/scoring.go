package routing

import (
	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/bandit"
	"bearing-hq/sextant/pkg/features"
)

// TenantTunables are the per-tenant utility knobs. A tenant entry in the
// configuration overrides the defaults as a whole; partial overrides are
// rejected at config validation.
type TenantTunables struct {
	// Alpha scales the policy's reward estimate in the utility blend.
	// Default: 1.0
	Alpha float64 `yaml:"alpha"`

	// CostWeight scales the arm's estimated cost penalty. Zero routes on
	// quality alone.
	// Default: 1.0
	CostWeight float64 `yaml:"cost_weight"`

	// QualityFloor excludes arms whose predicted quality falls below it.
	// This is a hard constraint applied before utility ranking, not a
	// penalty term.
	// Default: 0.0
	QualityFloor float64 `yaml:"quality_floor"`
}

// DefaultTunables returns the documented tunable defaults.
func DefaultTunables() TenantTunables {
	return TenantTunables{Alpha: 1.0, CostWeight: 1.0}
}

// Tunables resolves the utility knobs for a tenant, falling back to the
// defaults for tenants without an override.
type Tunables struct {
	// Default applies to every tenant without a dedicated entry.
	Default TenantTunables `yaml:"default"`

	// Tenants maps tenant IDs to their overrides.
	Tenants map[string]TenantTunables `yaml:"tenants"`
}

// For returns the tunables in effect for a tenant.
func (t *Tunables) For(tenantID string) TenantTunables {
	if tun, ok := t.Tenants[tenantID]; ok {
		return tun
	}
	return t.Default
}

// ArmUtility is one arm's cost-adjusted view for one decision. Rows for
// every active arm are exposed on the admin estimates surface.
//
// The quality floor is applied against Estimate (the policy's mean quality
// prediction); ranking uses Score (the exploration-adjusted value), so a
// policy's exploration bonus survives the cost blend.
type ArmUtility struct {
	// ArmID identifies the arm.
	ArmID string `json:"arm_id"`

	// Estimate is the policy's predicted quality for the arm in [0,1].
	Estimate float64 `json:"estimate"`

	// Score is the policy's exploration-adjusted ranking value.
	Score float64 `json:"score"`

	// Cost is the arm's estimated cost for the context.
	Cost float64 `json:"cost"`

	// Utility is alpha*score - cost_weight*cost.
	Utility float64 `json:"utility"`

	// Eligible is false when the estimate fell below the quality floor.
	Eligible bool `json:"eligible"`
}

// scoreArms computes the utility row for every active arm in stable
// snapshot order.
func scoreArms(ctx *features.Context, snap *arms.Snapshot, sel bandit.Selection, tun TenantTunables) []ArmUtility {
	active := snap.Active()
	rows := make([]ArmUtility, 0, len(active))
	for _, a := range active {
		est, ok := sel.Estimates[a.ID]
		if !ok {
			// An arm the policy has never scored is treated optimistically
			// so it can be tried at least once.
			est = 1.0
		}
		score, ok := sel.Scores[a.ID]
		if !ok {
			score = est
		}
		cost := a.Cost(ctx)
		rows = append(rows, ArmUtility{
			ArmID:    a.ID,
			Estimate: est,
			Score:    score,
			Cost:     cost,
			Utility:  tun.Alpha*score - tun.CostWeight*cost,
			Eligible: est >= tun.QualityFloor,
		})
	}
	return rows
}

// resolved is the outcome of applying the quality floor and utility ranking
// to one policy selection.
type resolved struct {
	armID    string
	utility  float64
	rows     []ArmUtility
	explored bool
	fallback bool
}

// resolveSelection turns a policy selection into the arm actually
// dispatched:
//
//  1. Arms whose predicted quality is below the floor are excluded
//     outright, whatever their cost.
//  2. A policy-level fallback pick (numeric instability) is honored as-is.
//  3. An exploration pick is honored if it clears the floor.
//  4. Otherwise the eligible arm with the highest utility wins, ties going
//     to the earlier arm in snapshot order.
//
// When the floor excludes every arm, the deterministic least-cost arm is
// dispatched and the decision is marked as a fallback.
func resolveSelection(ctx *features.Context, snap *arms.Snapshot, sel bandit.Selection, tun TenantTunables) (resolved, error) {
	rows := scoreArms(ctx, snap, sel, tun)
	if len(rows) == 0 {
		return resolved{}, ErrNoDispatchableArm
	}

	byID := make(map[string]ArmUtility, len(rows))
	for _, r := range rows {
		byID[r.ArmID] = r
	}

	if sel.Fallback {
		return resolved{
			armID:    sel.ArmID,
			utility:  byID[sel.ArmID].Utility,
			rows:     rows,
			fallback: true,
		}, nil
	}

	if sel.Explored {
		if r, ok := byID[sel.ArmID]; ok && r.Eligible {
			return resolved{
				armID:    sel.ArmID,
				utility:  r.Utility,
				rows:     rows,
				explored: true,
			}, nil
		}
	}

	var (
		best    ArmUtility
		haveAny bool
	)
	for _, r := range rows {
		if !r.Eligible {
			continue
		}
		if !haveAny || r.Utility > best.Utility {
			best = r
			haveAny = true
		}
	}
	if !haveAny {
		// Every arm is below the floor. Serving the least-cost arm beats
		// serving nothing; the decision is flagged so operators can see a
		// floor that excludes the whole catalog.
		lc, ok := snap.LeastCost(ctx)
		if !ok {
			return resolved{}, ErrNoDispatchableArm
		}
		return resolved{
			armID:    lc.ID,
			utility:  byID[lc.ID].Utility,
			rows:     rows,
			fallback: true,
		}, nil
	}

	return resolved{
		armID:   best.ArmID,
		utility: best.Utility,
		rows:    rows,
	}, nil
}
