package deployment

import (
	"strings"
)

// Environment-style variable names understood by Resolve.
const (
	VarEnvironment       = "ENVIRONMENT"
	VarAction            = "ACTION"
	VarSkipProvisioning  = "SKIP_PROVISIONING"
	VarSkipConfiguration = "SKIP_CONFIGURATION"
	VarDryRun            = "DRY_RUN"
	VarDebug             = "DEBUG"
	VarAutoApprove       = "AUTO_APPROVE"
	VarConfirmDestroy    = "CONFIRM_DESTROY"
)

// Defaults applied when neither an argument nor a variable is given.
const (
	DefaultEnvironment = EnvDev
	DefaultAction      = ActionApply
)

// LookupFunc returns the value of a named variable and whether it was set.
type LookupFunc func(name string) (string, bool)

// Input is the raw material for a Request.
type Input struct {
	// Args are the positional arguments: [environment] [action].
	Args []string

	// Lookup resolves environment-style variables. A nil Lookup behaves as if
	// no variable were set.
	Lookup LookupFunc
}

func (in Input) lookup(name string) (string, bool) {
	if in.Lookup == nil {
		return "", false
	}
	v, ok := in.Lookup(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Resolve validates the input and produces a Request.
//
// Positional arguments take precedence over variables. Unknown environments
// or actions are rejected with *InvalidRequestError rather than falling back
// to a default. Resolve has no side effects.
func Resolve(in Input) (Request, error) {
	if len(in.Args) > 2 {
		return Request{}, &InvalidRequestError{
			Field:   "arguments",
			Value:   strings.Join(in.Args, " "),
			Allowed: []string{"[environment] [action]"},
		}
	}

	envValue, _ := in.lookup(VarEnvironment)
	actionValue, _ := in.lookup(VarAction)
	if len(in.Args) > 0 {
		envValue = strings.TrimSpace(in.Args[0])
	}
	if len(in.Args) > 1 {
		actionValue = strings.TrimSpace(in.Args[1])
	}

	env := DefaultEnvironment
	if envValue != "" {
		env = Environment(strings.ToLower(envValue))
	}
	if !env.Valid() {
		return Request{}, &InvalidRequestError{
			Field:   "environment",
			Value:   envValue,
			Allowed: environmentNames(),
		}
	}

	action := DefaultAction
	if actionValue != "" {
		action = Action(strings.ToLower(actionValue))
	}
	if !action.Valid() {
		return Request{}, &InvalidRequestError{
			Field:   "action",
			Value:   actionValue,
			Allowed: actionNames(),
		}
	}

	req := Request{Environment: env, Action: action}

	bools := []struct {
		name   string
		target *bool
	}{
		{VarSkipProvisioning, &req.Flags.SkipProvisioning},
		{VarSkipConfiguration, &req.Flags.SkipConfiguration},
		{VarDryRun, &req.Flags.DryRun},
		{VarDebug, &req.Flags.Debug},
		{VarAutoApprove, &req.AutoApprove},
	}
	for _, b := range bools {
		raw, ok := in.lookup(b.name)
		if !ok {
			continue
		}
		v, err := parseBool(raw)
		if err != nil {
			return Request{}, &InvalidRequestError{
				Field:   b.name,
				Value:   raw,
				Allowed: []string{"true", "false"},
			}
		}
		*b.target = v
	}

	if token, ok := in.lookup(VarConfirmDestroy); ok {
		req.DestroyToken = token
	}

	return req, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, errInvalidBool
}

func environmentNames() []string {
	names := make([]string, 0, len(Environments()))
	for _, e := range Environments() {
		names = append(names, string(e))
	}
	return names
}

func actionNames() []string {
	names := make([]string, 0, len(Actions()))
	for _, a := range Actions() {
		names = append(names, string(a))
	}
	return names
}
