package bandit

import "fmt"

// Policy type names accepted by New and by the policy_type config key.
const (
	TypeEpsilonGreedy = "epsilon_greedy"
	TypeUCB1          = "ucb1"
	TypeLinUCB        = "linucb"
	TypeThompson      = "thompson"
	TypeBootstrapped  = "bootstrapped"
	TypeNeural        = "neural"
)

// checkpointVersion is embedded in every serialized policy state so future
// format changes can be detected on restore.
const checkpointVersion = 1

// New builds a policy of the given type. The config is defaulted and
// validated before construction, so a zero Config yields a working policy.
func New(policyType string, cfg Config) (Policy, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy config: %w", err)
	}

	switch policyType {
	case TypeEpsilonGreedy:
		return newEpsilonGreedy(cfg), nil
	case TypeUCB1:
		return newUCB1(cfg), nil
	case TypeLinUCB:
		return newLinUCB(cfg), nil
	case TypeThompson:
		return newThompson(cfg), nil
	case TypeBootstrapped:
		return newBootstrapped(cfg), nil
	case TypeNeural:
		return newNeural(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownPolicy, policyType, Types())
	}
}

// Types returns the known policy type names in a stable order.
func Types() []string {
	return []string{
		TypeEpsilonGreedy,
		TypeUCB1,
		TypeLinUCB,
		TypeThompson,
		TypeBootstrapped,
		TypeNeural,
	}
}
