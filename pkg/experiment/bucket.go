package experiment

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
)

// Bucketing errors.
var (
	ErrUnknownVariant = errors.New("unknown variant")
	ErrNoBaseline     = errors.New("experiment requires exactly one baseline variant")
)

// Bucket deterministically maps a request key to a bucket. The same
// (key, salt) pair always lands in the same bucket, so tenants stay in
// their assigned variant for the duration of an experiment.
func Bucket(requestKey, salt string, bucketCount int) int {
	h := fnv.New64a()
	h.Write([]byte(salt))
	h.Write([]byte{':'})
	h.Write([]byte(requestKey))
	return int(h.Sum64() % uint64(bucketCount))
}

// VariantConfig declares one experiment variant.
type VariantConfig struct {
	// ID names the variant in decisions, metrics, and incidents.
	ID string `yaml:"id"`

	// PolicyID selects which policy instance serves this variant's
	// traffic.
	PolicyID string `yaml:"policy_id"`

	// Share is the fraction of buckets assigned to this variant. Shares
	// across all serving (non-shadow) variants must sum to 1.
	Share float64 `yaml:"share"`

	// Baseline marks the control variant. Exactly one variant must be the
	// baseline; disabled variants fall back to it, and rollback deltas are
	// computed against it.
	Baseline bool `yaml:"baseline"`

	// Shadow marks a variant whose policy is scored on live traffic but
	// whose picks are never dispatched. Shadow variants take no traffic
	// share and cannot be the baseline.
	Shadow bool `yaml:"shadow"`
}

// assigner maps buckets to serving variants via contiguous ranges. Shadow
// variants are excluded from the bucket space entirely.
type assigner struct {
	salt        string
	bucketCount int
	variants    []VariantConfig // all variants, config order
	serving     []VariantConfig // non-shadow variants, config order
	bounds      []int           // exclusive upper bucket bound per serving variant
	baseline    string
}

func newAssigner(salt string, bucketCount int, variants []VariantConfig) (*assigner, error) {
	if bucketCount < 1 {
		return nil, fmt.Errorf("bucket count must be >= 1, got %d", bucketCount)
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("experiment requires at least one variant")
	}

	var (
		baseline string
		total    float64
		serving  []VariantConfig
	)
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if v.ID == "" {
			return nil, fmt.Errorf("variant id cannot be empty")
		}
		if seen[v.ID] {
			return nil, fmt.Errorf("duplicate variant id %q", v.ID)
		}
		seen[v.ID] = true
		if v.Share < 0 || math.IsNaN(v.Share) || math.IsInf(v.Share, 0) {
			return nil, fmt.Errorf("variant %q share must be a finite value >= 0, got %v", v.ID, v.Share)
		}
		if v.Shadow {
			if v.Baseline {
				return nil, fmt.Errorf("shadow variant %q cannot be the baseline", v.ID)
			}
			if v.Share != 0 {
				return nil, fmt.Errorf("shadow variant %q must have share 0, got %v", v.ID, v.Share)
			}
			continue
		}
		if v.Baseline {
			if baseline != "" {
				return nil, ErrNoBaseline
			}
			baseline = v.ID
		}
		serving = append(serving, v)
		total += v.Share
	}
	if baseline == "" {
		return nil, ErrNoBaseline
	}
	if math.Abs(total-1) > 1e-9 {
		return nil, fmt.Errorf("variant shares sum to %v, want 1", total)
	}

	// Carve the bucket space into contiguous ranges; the last serving
	// variant absorbs any rounding slack.
	bounds := make([]int, len(serving))
	acc := 0.0
	for i, v := range serving {
		acc += v.Share
		bounds[i] = int(math.Round(acc * float64(bucketCount)))
	}
	bounds[len(bounds)-1] = bucketCount

	return &assigner{
		salt:        salt,
		bucketCount: bucketCount,
		variants:    variants,
		serving:     serving,
		bounds:      bounds,
		baseline:    baseline,
	}, nil
}

// variantFor returns the serving variant whose bucket range covers the key.
func (a *assigner) variantFor(requestKey string) VariantConfig {
	b := Bucket(requestKey, a.salt, a.bucketCount)
	for i, bound := range a.bounds {
		if b < bound {
			return a.serving[i]
		}
	}
	return a.serving[len(a.serving)-1]
}

// baselineVariant returns the control variant.
func (a *assigner) baselineVariant() VariantConfig {
	for _, v := range a.variants {
		if v.ID == a.baseline {
			return v
		}
	}
	return a.variants[0]
}
