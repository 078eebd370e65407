package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/bandit"
	"bearing-hq/sextant/pkg/experiment"
	"bearing-hq/sextant/pkg/features"
	"bearing-hq/sextant/pkg/reward"
	"bearing-hq/sextant/pkg/statestore"
	"bearing-hq/sextant/pkg/telemetry/metrics"
)

// Config tunes the router orchestrator.
type Config struct {
	// OutcomeTimeout bounds how long a decision waits for its outcome
	// before the engine synthesizes a penalty reward.
	// Default: 30s
	OutcomeTimeout time.Duration `yaml:"outcome_timeout"`

	// MaxPending caps the in-flight decision table. RouteRequest sheds
	// load with ErrTooManyPending beyond it.
	// Default: 10000
	MaxPending int `yaml:"max_pending"`

	// Tunables are the per-tenant utility knobs.
	Tunables Tunables `yaml:"tunables"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		OutcomeTimeout: 30 * time.Second,
		MaxPending:     10000,
		Tunables:       Tunables{Default: DefaultTunables()},
	}
}

// PolicySpec declares one policy instance for the engine to build.
type PolicySpec struct {
	// Type is one of the bandit policy type names.
	Type string `yaml:"type"`

	// Config carries the policy tunables.
	Config bandit.Config `yaml:"config"`
}

// Engine is the router orchestrator: it owns the two-phase
// decide-then-learn protocol, the pending decision table, and the policy
// instances. All methods are safe for concurrent use.
type Engine struct {
	cfg     Config
	catalog *arms.Catalog
	harness *experiment.Harness
	reward  *reward.Engine

	// policies and policyTypes are immutable after construction.
	policies    map[string]bandit.Policy
	policyTypes map[string]string

	// tunables is swapped whole on hot reload; decisions in flight keep
	// the values they were scored with.
	tunables atomic.Pointer[Tunables]

	pending *pendingTable
	stats   *engineStats
	logger  *slog.Logger

	audit   AuditSink
	metrics *metrics.Collector

	closed atomic.Bool
}

// NewEngine builds the orchestrator and its policy instances. Every
// experiment variant must reference a policy declared in specs; policies
// start cold until WarmStart restores them from a checkpoint store.
func NewEngine(cfg Config, catalog *arms.Catalog, specs map[string]PolicySpec, harness *experiment.Harness, rewardEngine *reward.Engine) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if harness == nil {
		return nil, fmt.Errorf("experiment harness cannot be nil")
	}
	if rewardEngine == nil {
		return nil, fmt.Errorf("reward engine cannot be nil")
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one policy must be configured")
	}

	def := DefaultConfig()
	if cfg.OutcomeTimeout == 0 {
		cfg.OutcomeTimeout = def.OutcomeTimeout
	}
	if cfg.MaxPending == 0 {
		cfg.MaxPending = def.MaxPending
	}
	if cfg.Tunables.Default == (TenantTunables{}) {
		cfg.Tunables.Default = def.Tunables.Default
	}

	policies := make(map[string]bandit.Policy, len(specs))
	policyTypes := make(map[string]string, len(specs))
	for id, spec := range specs {
		pol, err := bandit.New(spec.Type, spec.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to build policy %q: %w", id, err)
		}
		policies[id] = pol
		policyTypes[id] = spec.Type
	}

	for _, v := range harness.Variants() {
		if _, ok := policies[v.PolicyID]; !ok {
			return nil, &UnknownPolicyError{VariantID: v.ID, PolicyID: v.PolicyID}
		}
	}

	e := &Engine{
		cfg:         cfg,
		catalog:     catalog,
		harness:     harness,
		reward:      rewardEngine,
		policies:    policies,
		policyTypes: policyTypes,
		pending:     newPendingTable(cfg.MaxPending),
		stats:       newEngineStats(),
		logger:      slog.Default().With("component", "routing.engine"),
	}
	e.tunables.Store(&cfg.Tunables)
	return e, nil
}

// UpdateTunables replaces the per-tenant utility knobs. Safe to call while
// serving; an empty default falls back to DefaultTunables.
func (e *Engine) UpdateTunables(t Tunables) {
	if t.Default == (TenantTunables{}) {
		t.Default = DefaultTunables()
	}
	e.tunables.Store(&t)
}

// UpdateEpsilon retunes the base exploration rate of one policy. It reports
// false when the policy does not exist or does not expose an exploration
// rate.
func (e *Engine) UpdateEpsilon(policyID string, eps float64) bool {
	pol, ok := e.policies[policyID]
	if !ok {
		return false
	}
	tuner, ok := pol.(bandit.ExplorationTuner)
	if !ok {
		return false
	}
	tuner.SetEpsilon(eps)
	return true
}

// SetAuditSink wires the decision audit trail. Set before serving traffic.
func (e *Engine) SetAuditSink(sink AuditSink) {
	e.audit = sink
}

// SetMetrics wires the Prometheus collector. Set before serving traffic.
func (e *Engine) SetMetrics(c *metrics.Collector) {
	e.metrics = c
}

// bucketKey derives the experiment bucketing key: tenant and content type,
// so one tenant's traffic of one kind stays in one variant.
func bucketKey(ctx *features.Context) string {
	return ctx.TenantID + ":" + ctx.ContentType
}

// RouteRequest runs one decision: validate and extract features, assign an
// experiment variant, ask the variant's policy for a selection, apply the
// quality floor and utility ranking, and register the decision as pending
// until its outcome arrives or times out.
//
// The returned decision is final: the caller dispatches to the chosen arm
// and later reports the outcome under the same request ID.
func (e *Engine) RouteRequest(ctx context.Context, meta features.RequestMetadata) (Decision, error) {
	if e.closed.Load() {
		return Decision{}, ErrRouterClosed
	}
	start := time.Now()

	featCtx, err := features.Extract(meta)
	if err != nil {
		e.stats.validationRejects.Add(1)
		if e.metrics != nil {
			e.metrics.RecordValidationReject()
		}
		return Decision{}, err
	}

	p := newPendingDecision()
	if err := p.advance(StateSelecting); err != nil {
		return Decision{}, err
	}

	snap := e.catalog.Current()
	if len(snap.Active()) == 0 {
		e.stats.errors.Add(1)
		return Decision{}, ErrNoDispatchableArm
	}

	variant := e.harness.Assign(bucketKey(featCtx))
	pol := e.policies[variant.PolicyID]
	tun := e.tunables.Load().For(featCtx.TenantID)

	sel, selErr := pol.Select(featCtx, snap)
	if selErr != nil {
		// The policy could not choose; dispatch the deterministic
		// least-cost arm instead of failing the request.
		lc, ok := snap.LeastCost(featCtx)
		if !ok {
			e.stats.errors.Add(1)
			return Decision{}, ErrNoDispatchableArm
		}
		if errors.Is(selErr, bandit.ErrNumericInstability) {
			e.stats.instability.Add(1)
			if e.metrics != nil {
				e.metrics.RecordInstability(variant.PolicyID)
			}
		}
		e.logger.Warn("selection failed, dispatching fallback arm",
			"request_id", featCtx.RequestID,
			"policy_id", variant.PolicyID,
			"fallback_arm", lc.ID,
			"error", selErr,
		)
		sel = bandit.Selection{ArmID: lc.ID, Fallback: true}
		if err := p.advance(StateSelectionFailed); err != nil {
			return Decision{}, err
		}
	} else if sel.Fallback {
		// The policy recovered from unstable math internally; the pick is
		// already the least-cost arm.
		e.stats.instability.Add(1)
		if e.metrics != nil {
			e.metrics.RecordInstability(variant.PolicyID)
		}
	}

	res, err := resolveSelection(featCtx, snap, sel, tun)
	if err != nil {
		e.stats.errors.Add(1)
		return Decision{}, err
	}

	if p.currentState() == StateSelecting {
		if err := p.advance(StateDispatched); err != nil {
			return Decision{}, err
		}
	}

	confidence := sel.Confidence
	if res.fallback {
		confidence = 0
	}
	dec := Decision{
		RequestID:      featCtx.RequestID,
		TenantID:       featCtx.TenantID,
		ArmID:          res.armID,
		VariantID:      variant.ID,
		PolicyID:       variant.PolicyID,
		Confidence:     confidence,
		Utility:        res.utility,
		Explored:       res.explored,
		Fallback:       res.fallback,
		CatalogVersion: snap.Version,
		CreatedAt:      time.Now().UTC(),
	}

	// A request cancelled before dispatch is voided: nothing is learned
	// and nothing is audited.
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.stats.outcomesVoided.Add(1)
		if e.metrics != nil {
			e.metrics.RecordOutcome("voided")
		}
		return Decision{}, ctxErr
	}

	p.dec = dec
	p.featCtx = featCtx
	p.shadows = e.scoreShadows(featCtx, snap, dec)

	if err := p.advance(StateAwaitingOutcome); err != nil {
		return Decision{}, err
	}

	// Registering publishes the decision: the moment it lands in the
	// table, a concurrent ReportOutcome may take it, stop its timer, and
	// complete it. The timer and the audit decision record must therefore
	// exist before register, not after.
	p.timer = time.AfterFunc(e.cfg.OutcomeTimeout, func() {
		e.resolveTimeout(dec.RequestID)
	})
	if e.audit != nil {
		e.audit.RecordDecision(dec)
	}

	if err := e.pending.register(dec.RequestID, p); err != nil {
		p.stopTimer()
		e.stats.errors.Add(1)
		// Withdraw the audit record opened above. A duplicate request ID
		// is the exception: the open record belongs to the decision
		// already in flight, which will complete it.
		if e.audit != nil && !errors.Is(err, ErrDuplicateRequest) {
			e.audit.RecordCompletion(RewardRecord{
				RequestID:    dec.RequestID,
				ArmID:        dec.ArmID,
				PolicyID:     dec.PolicyID,
				VariantID:    dec.VariantID,
				Utility:      dec.Utility,
				State:        StateVoided,
				Inconclusive: true,
				CompletedAt:  time.Now().UTC(),
			})
		}
		return Decision{}, err
	}

	e.stats.recordDecision(dec)
	if e.metrics != nil {
		status := "routed"
		if dec.Fallback {
			status = "fallback"
		}
		e.metrics.RecordDecision(dec.PolicyID, dec.ArmID, dec.VariantID, status, time.Since(start))
		e.metrics.SetPendingDecisions(e.pending.size())
	}

	e.logger.Debug("decision dispatched",
		"request_id", dec.RequestID,
		"tenant_id", dec.TenantID,
		"arm_id", dec.ArmID,
		"variant_id", dec.VariantID,
		"utility", dec.Utility,
		"confidence", dec.Confidence,
		"fallback", dec.Fallback,
	)
	return dec, nil
}

// scoreShadows asks every enabled shadow variant's policy for its own pick.
// Shadow picks are never dispatched; they wait on the pending decision to
// be scored against the realized reward.
func (e *Engine) scoreShadows(featCtx *features.Context, snap *arms.Snapshot, dec Decision) []shadowPick {
	shadowVariants := e.harness.ShadowVariants()
	if len(shadowVariants) == 0 {
		return nil
	}

	picks := make([]shadowPick, 0, len(shadowVariants))
	for _, sv := range shadowVariants {
		pol := e.policies[sv.PolicyID]
		sel, err := pol.Select(featCtx, snap)
		if err != nil {
			e.logger.Warn("shadow selection failed",
				"request_id", featCtx.RequestID,
				"variant_id", sv.ID,
				"error", err,
			)
			continue
		}
		picks = append(picks, shadowPick{
			variantID: sv.ID,
			policyID:  sv.PolicyID,
			armID:     sel.ArmID,
			estimate:  sel.Estimates[sel.ArmID],
		})
		if e.metrics != nil {
			e.metrics.RecordDecision(sv.PolicyID, sel.ArmID, sv.ID, "shadow", 0)
		}
	}
	return picks
}

// ReportOutcome resolves a pending decision with its real outcome: the
// reward engine scores it, the variant's policy learns, the experiment
// harness observes the variant metrics, and shadow picks are scored.
//
// Outcomes for unknown request IDs (already resolved, timed out, or never
// routed) return ErrUnknownRequest.
func (e *Engine) ReportOutcome(ctx context.Context, out reward.Outcome) error {
	if e.closed.Load() {
		return ErrRouterClosed
	}

	p, ok := e.pending.take(out.RequestID)
	if !ok {
		e.stats.lateOutcomes.Add(1)
		if e.metrics != nil {
			e.metrics.RecordOutcome("late")
		}
		return &UnknownRequestError{RequestID: out.RequestID}
	}
	p.stopTimer()

	if err := p.advance(StateRewarded); err != nil {
		return err
	}
	if out.ReceivedAt.IsZero() {
		out.ReceivedAt = time.Now().UTC()
	}

	r := e.reward.Score(out)
	e.stats.outcomesReceived.Add(1)
	if e.metrics != nil {
		if out.Success {
			e.metrics.RecordOutcome("success")
		} else {
			e.metrics.RecordOutcome("failure")
		}
		e.metrics.RecordDecisionCost(p.dec.ArmID, out.ActualCost)
	}

	// Rollback windows watch realized quality, latency, and cost. Failed
	// outcomes count too: a variant that fails requests must drag its own
	// window down, not vanish from it.
	e.harness.Observe(p.dec.VariantID, out.QualityScore, float64(out.Latency.Milliseconds()), out.ActualCost)

	e.complete(p, out, r)
	return nil
}

// resolveTimeout is the timer path: the outcome never arrived, so the
// decision completes with the configured minimum reward. The reward is a
// real data point for learning; the decision is marked inconclusive and
// excluded from the persisted audit trail.
func (e *Engine) resolveTimeout(requestID string) {
	p, ok := e.pending.take(requestID)
	if !ok {
		// A real outcome won the race.
		return
	}

	if err := p.advance(StateOutcomeTimeout); err != nil {
		e.logger.Error("timeout on non-pending decision", "request_id", requestID, "error", err)
		return
	}

	e.stats.outcomesTimedOut.Add(1)
	if e.metrics != nil {
		e.metrics.RecordOutcome("timeout")
	}
	e.logger.Warn("outcome timed out, synthesizing penalty reward",
		"request_id", requestID,
		"arm_id", p.dec.ArmID,
		"timeout", e.cfg.OutcomeTimeout,
	)

	out := reward.Outcome{
		RequestID:  requestID,
		Success:    false,
		ReceivedAt: time.Now().UTC(),
	}
	e.complete(p, out, e.reward.TimeoutReward())
}

// complete is the single terminal path shared by real outcomes and
// timeouts: update the policy, score shadows, and emit the completion
// record. The caller has already taken the decision off the pending table,
// so complete runs exactly once per decision.
func (e *Engine) complete(p *pendingDecision, out reward.Outcome, rewardValue float64) {
	banditDec := bandit.Decision{ArmID: p.dec.ArmID, Context: p.featCtx}

	pol := e.policies[p.dec.PolicyID]
	if err := pol.Update(banditDec, rewardValue); err != nil {
		if errors.Is(err, bandit.ErrNumericInstability) {
			e.stats.instability.Add(1)
			if e.metrics != nil {
				e.metrics.RecordInstability(p.dec.PolicyID)
			}
		}
		e.logger.Warn("policy update failed",
			"request_id", p.dec.RequestID,
			"policy_id", p.dec.PolicyID,
			"error", err,
		)
	} else if e.metrics != nil {
		e.metrics.RecordPolicyUpdate(p.dec.PolicyID)
	}
	if e.metrics != nil {
		e.metrics.RecordReward(p.dec.PolicyID, p.dec.VariantID, rewardValue)
	}

	// Shadow policies are scored against the realized reward; one learns
	// from the outcome only when its pick agreed with the live pick, since
	// the outcome says nothing about arms that did not serve the request.
	for _, sh := range p.shadows {
		e.harness.RecordShadow(p.dec.ArmID, sh.armID, rewardValue, sh.estimate)
		if sh.armID == p.dec.ArmID && sh.policyID != p.dec.PolicyID {
			if err := e.policies[sh.policyID].Update(banditDec, rewardValue); err != nil {
				e.logger.Warn("shadow policy update failed",
					"request_id", p.dec.RequestID,
					"policy_id", sh.policyID,
					"error", err,
				)
			}
		}
	}
	if e.metrics != nil && len(p.shadows) > 0 {
		e.metrics.UpdateShadowAgreement(e.harness.ShadowStats().AgreementRate)
	}

	via := p.via
	if err := p.advance(StateComplete); err != nil {
		e.logger.Error("decision failed to complete", "request_id", p.dec.RequestID, "error", err)
		return
	}

	inconclusive := !out.Success || via != StateRewarded
	rec := RewardRecord{
		RequestID:    p.dec.RequestID,
		ArmID:        p.dec.ArmID,
		PolicyID:     p.dec.PolicyID,
		VariantID:    p.dec.VariantID,
		Reward:       rewardValue,
		Utility:      p.dec.Utility,
		Quality:      out.QualityScore,
		LatencyMS:    float64(out.Latency.Milliseconds()),
		Cost:         out.ActualCost,
		Success:      out.Success,
		State:        terminalState(via),
		Inconclusive: inconclusive,
		CompletedAt:  out.ReceivedAt,
	}
	if e.audit != nil {
		e.audit.RecordCompletion(rec)
	}
	if e.metrics != nil {
		e.metrics.SetPendingDecisions(e.pending.size())
	}
}

// terminalState maps the resolving branch to the record's terminal state:
// decisions resolved by a real outcome read "complete", the side branches
// keep their own names.
func terminalState(via DecisionState) DecisionState {
	if via == StateRewarded {
		return StateComplete
	}
	return via
}

// Cancel voids a pending decision: the request was abandoned before its
// outcome, so nothing is learned and the audit record is dropped. It
// reports whether a pending decision was found.
func (e *Engine) Cancel(requestID string) bool {
	p, ok := e.pending.take(requestID)
	if !ok {
		return false
	}
	p.stopTimer()

	if err := p.advance(StateVoided); err != nil {
		e.logger.Error("cancel on non-pending decision", "request_id", requestID, "error", err)
		return false
	}

	e.stats.outcomesVoided.Add(1)
	if e.metrics != nil {
		e.metrics.RecordOutcome("voided")
		e.metrics.SetPendingDecisions(e.pending.size())
	}

	if err := p.advance(StateComplete); err != nil {
		e.logger.Error("voided decision failed to complete", "request_id", requestID, "error", err)
		return true
	}
	if e.audit != nil {
		e.audit.RecordCompletion(RewardRecord{
			RequestID:    p.dec.RequestID,
			ArmID:        p.dec.ArmID,
			PolicyID:     p.dec.PolicyID,
			VariantID:    p.dec.VariantID,
			Utility:      p.dec.Utility,
			State:        StateVoided,
			Inconclusive: true,
			CompletedAt:  time.Now().UTC(),
		})
	}

	e.logger.Debug("decision voided", "request_id", requestID)
	return true
}

// Checkpoints serializes every live policy, implementing the checkpoint
// source contract. Per-arm locks are held only for the in-memory serialize
// step inside each policy's Snapshot.
func (e *Engine) Checkpoints(ctx context.Context) ([]*statestore.PolicyCheckpoint, error) {
	ids := make([]string, 0, len(e.policies))
	for id := range e.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*statestore.PolicyCheckpoint, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		data, err := e.policies[id].Snapshot()
		if err != nil {
			e.logger.Error("failed to serialize policy state",
				"policy_id", id,
				"error", err,
			)
			continue
		}
		out = append(out, &statestore.PolicyCheckpoint{
			PolicyID:   id,
			PolicyType: e.policyTypes[id],
			Data:       data,
		})
	}
	return out, nil
}

// WarmStart restores every policy from the checkpoint store. Missing
// checkpoints leave the policy cold; load or restore failures log a visible
// warning and also leave the policy cold, never failing startup. Callers
// must not assume strict durability.
func (e *Engine) WarmStart(ctx context.Context, store statestore.Store) {
	for id, pol := range e.policies {
		cp, err := store.Load(ctx, id)
		if err != nil {
			e.logger.Warn("checkpoint load failed, starting cold",
				"policy_id", id,
				"error", err,
			)
			continue
		}
		if cp == nil {
			e.logger.Info("no checkpoint found, starting cold", "policy_id", id)
			continue
		}
		if cp.PolicyType != e.policyTypes[id] {
			e.logger.Warn("checkpoint policy type changed, starting cold",
				"policy_id", id,
				"checkpoint_type", cp.PolicyType,
				"configured_type", e.policyTypes[id],
			)
			continue
		}
		if err := pol.Restore(cp.Data); err != nil {
			e.logger.Warn("checkpoint restore failed, starting cold",
				"policy_id", id,
				"error", err,
			)
			continue
		}
		e.logger.Info("policy state restored",
			"policy_id", id,
			"policy_type", cp.PolicyType,
			"saved_at", cp.SavedAt,
		)
	}
}

// Estimates computes the current per-arm utility view for every policy,
// for the admin surface. The supplied metadata stands in for a typical
// request of the tenant being inspected.
func (e *Engine) Estimates(meta features.RequestMetadata) (map[string][]ArmUtility, error) {
	featCtx, err := features.Extract(meta)
	if err != nil {
		return nil, err
	}

	snap := e.catalog.Current()
	tun := e.tunables.Load().For(featCtx.TenantID)

	out := make(map[string][]ArmUtility, len(e.policies))
	for id, pol := range e.policies {
		sel, err := pol.Select(featCtx, snap)
		if err != nil {
			e.logger.Warn("estimate selection failed", "policy_id", id, "error", err)
			continue
		}
		out[id] = scoreArms(featCtx, snap, sel, tun)
	}
	return out, nil
}

// PolicyIDs returns the configured policy instance IDs in sorted order.
func (e *Engine) PolicyIDs() []string {
	ids := make([]string, 0, len(e.policies))
	for id := range e.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PolicyType returns the policy type name behind a policy ID.
func (e *Engine) PolicyType(id string) string {
	return e.policyTypes[id]
}

// Stats returns a snapshot of the router counters.
func (e *Engine) Stats() Stats {
	return e.stats.Snapshot()
}

// PendingCount returns the number of decisions awaiting an outcome.
func (e *Engine) PendingCount() int {
	return e.pending.size()
}

// Close stops accepting requests and voids every in-flight decision. A
// restart is not the arms' fault, so shutdown does not synthesize penalty
// rewards; the decisions simply never complete into learning or audit.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	drained := e.pending.drain()
	for _, p := range drained {
		p.stopTimer()
		if err := p.advance(StateVoided); err != nil {
			continue
		}
		e.stats.outcomesVoided.Add(1)
		if e.metrics != nil {
			e.metrics.RecordOutcome("voided")
		}
		_ = p.advance(StateComplete)
	}

	e.logger.Info("routing engine closed",
		"voided_in_flight", len(drained),
		"total_decisions", e.stats.totalDecisions.Load(),
	)
	return nil
}
