package deployment

import "fmt"

// Environment is a deployment target.
type Environment string

// Supported environments.
const (
	EnvDev     Environment = "dev"
	EnvStaging Environment = "staging"
	EnvProd    Environment = "prod"
)

// Environments lists every supported environment in promotion order.
func Environments() []Environment {
	return []Environment{EnvDev, EnvStaging, EnvProd}
}

// Valid reports whether e is a supported environment.
func (e Environment) Valid() bool {
	for _, known := range Environments() {
		if e == known {
			return true
		}
	}
	return false
}

func (e Environment) String() string { return string(e) }

// Action is the lifecycle operation requested for an environment.
type Action string

// Supported actions.
const (
	ActionPlan    Action = "plan"
	ActionApply   Action = "apply"
	ActionDestroy Action = "destroy"
)

// Actions lists every supported action.
func Actions() []Action {
	return []Action{ActionPlan, ActionApply, ActionDestroy}
}

// Valid reports whether a is a supported action.
func (a Action) Valid() bool {
	for _, known := range Actions() {
		if a == known {
			return true
		}
	}
	return false
}

// Mutating reports whether the action changes infrastructure state.
// Mutating actions are preceded by a backup snapshot.
func (a Action) Mutating() bool {
	return a == ActionApply || a == ActionDestroy
}

func (a Action) String() string { return string(a) }

// Flags are the runtime switches of a deployment. All default to off.
type Flags struct {
	SkipProvisioning  bool `json:"skipProvisioning"`
	SkipConfiguration bool `json:"skipConfiguration"`
	DryRun            bool `json:"dryRun"`
	Debug             bool `json:"debug"`
}

// Request is a fully resolved deployment request.
// It is a value type: stages receive copies and never modify it.
type Request struct {
	Environment Environment `json:"environment"`
	Action      Action      `json:"action"`
	Flags       Flags       `json:"flags"`

	// AutoApprove skips the interactive apply confirmation.
	AutoApprove bool `json:"autoApprove"`

	// DestroyToken is the confirmation supplied for a destroy. It must equal
	// DestroyToken(Environment) for the destroy call to be made.
	DestroyToken string `json:"-"`
}

func (r Request) String() string {
	return fmt.Sprintf("%s/%s", r.Environment, r.Action)
}

// RunsProvisioning reports whether the provisioning stage takes part in the run.
func (r Request) RunsProvisioning() bool {
	return !r.Flags.SkipProvisioning
}

// RunsConfiguration reports whether the configuration stage takes part in the run.
// Configuration never runs for plan or destroy.
func (r Request) RunsConfiguration() bool {
	return r.Action == ActionApply && !r.Flags.SkipConfiguration
}

// DestroyToken returns the confirmation token required to destroy env.
// It is deliberately different from the apply confirmation.
func DestroyToken(env Environment) string {
	return "destroy-" + string(env)
}
