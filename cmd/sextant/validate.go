package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"bearing-hq/sextant/pkg/arms"
	"bearing-hq/sextant/pkg/cli"
	"bearing-hq/sextant/pkg/config"
	"bearing-hq/sextant/pkg/experiment"
	"bearing-hq/sextant/pkg/reward"
	"bearing-hq/sextant/pkg/routing"
)

var validateFlags struct {
	strict bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the Sextant configuration without starting the daemon.

The validate command loads the configuration file, applies environment
variable overrides, and runs the same checks startup runs:
  - Field-level validation (enum values, ranges, NaN/Inf rejection)
  - Arm catalog construction (unique, non-empty arm set)
  - Experiment harness construction (traffic shares sum to 1, exactly one
    baseline, shadow variants carry no share)
  - Policy construction for every declared policy instance
  - Variant-to-policy references

Examples:
  # Validate the default config file
  sextant validate

  # Validate a specific file
  sextant validate --config /etc/sextant/config.yaml

  # Treat warnings as errors
  sextant validate --strict`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.strict, "strict", false, "treat warnings as errors")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFileWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	fmt.Printf("Validating %s\n\n", cfgFile)

	// Exercise the constructors: they enforce the cross-field rules that
	// field-level validation cannot see.
	catalog, err := arms.NewCatalog(catalogArms(cfg.Catalog))
	if err != nil {
		return cli.NewConfigError("catalog", err.Error())
	}

	rewardEngine, err := reward.NewEngine(cfg.Reward)
	if err != nil {
		return cli.NewConfigError("reward", err.Error())
	}

	harness, err := experiment.NewHarness(cfg.Experiment)
	if err != nil {
		return cli.NewConfigError("experiment", err.Error())
	}

	engine, err := routing.NewEngine(cfg.Router, catalog, policySpecs(cfg.Policies), harness, rewardEngine)
	if err != nil {
		return cli.NewConfigError("policies", err.Error())
	}
	defer engine.Close()

	fmt.Printf("✓ Configuration valid\n\n")

	fmt.Printf("Arms (%d):\n", len(catalog.Current().Active()))
	for _, a := range catalog.Current().Active() {
		fmt.Printf("  %-24s base=%.4f per_unit=%.4f tags=%v\n",
			a.ID, a.Pricing.Base, a.Pricing.PerUnit, a.CapabilityTags)
	}

	fmt.Printf("\nPolicies (%d):\n", len(engine.PolicyIDs()))
	for _, id := range engine.PolicyIDs() {
		fmt.Printf("  %-24s %s\n", id, engine.PolicyType(id))
	}

	variants := harness.Variants()
	sort.Slice(variants, func(i, j int) bool { return variants[i].ID < variants[j].ID })
	fmt.Printf("\nVariants (%d):\n", len(variants))
	for _, v := range variants {
		role := "serving"
		switch {
		case v.Baseline:
			role = "baseline"
		case v.Shadow:
			role = "shadow"
		}
		fmt.Printf("  %-24s policy=%s share=%.2f %s\n", v.ID, v.PolicyID, v.Share, role)
	}

	warnings := validationWarnings(cfg)
	if len(warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(warnings))
		for _, w := range warnings {
			fmt.Printf("  ! %s\n", w)
		}
		if validateFlags.strict {
			return cli.NewCommandError("validate", fmt.Errorf("%d warnings in strict mode", len(warnings)))
		}
	}

	return nil
}

// validationWarnings flags configurations that are valid but probably not
// what the operator meant.
func validationWarnings(cfg *config.Config) []string {
	var warnings []string

	if cfg.StateStore.Backend == "" || cfg.StateStore.Backend == "memory" {
		warnings = append(warnings, "statestore.backend is memory: policy state will not survive a restart")
	}
	if !cfg.Audit.Enabled {
		warnings = append(warnings, "audit.enabled is false: no decision trail will be persisted")
	}
	if cfg.Router.Tunables.Default.QualityFloor == 0 {
		warnings = append(warnings, "router.tunables.default.quality_floor is 0: no arm is ever excluded on predicted quality")
	}

	freeArms := 0
	for _, a := range cfg.Catalog.Arms {
		if a.Pricing.Base == 0 && a.Pricing.PerUnit == 0 {
			freeArms++
		}
	}
	if freeArms > 0 {
		warnings = append(warnings, fmt.Sprintf("%d arm(s) have zero pricing: cost-aware ranking cannot separate them", freeArms))
	}

	return warnings
}
