package handlers

import (
	"fmt"

	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/inventory"
	"github.com/imamik/infractl/internal/outputs"
)

// InventoryOptions are the inputs of the inventory command.
type InventoryOptions struct {
	// OutputsPath is the saved provisioning outputs; empty uses the
	// configured outputs file.
	OutputsPath string
	// OutputPath is where the inventory is written; "-" writes to stdout
	// and empty uses the configured inventory path.
	OutputPath  string
	Format      string
	Environment string
	Validate    bool
	ConfigPath  string
}

// Inventory generates the configuration inventory from saved provisioning
// outputs without running any stage.
func Inventory(opts InventoryOptions) error {
	dir, err := workDir()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}
	cfg, err := loadConfig(opts.ConfigPath, dir)
	if err != nil {
		return err
	}

	env := deployment.DefaultEnvironment
	if opts.Environment != "" {
		env = deployment.Environment(opts.Environment)
	}
	if !env.Valid() {
		return &deployment.InvalidRequestError{Field: "environment", Value: opts.Environment, Allowed: envNames()}
	}
	format, err := inventory.ParseFormat(opts.Format)
	if err != nil {
		return err
	}

	source := opts.OutputsPath
	if source == "" {
		source = cfg.Paths.Outputs
	}
	set, err := outputs.Load(source)
	if err != nil {
		return err
	}

	doc, err := inventory.Generate(set, env, inventory.DefaultsFor(cfg, env))
	if err != nil {
		return err
	}
	if opts.Validate {
		if err := inventory.Validate(doc); err != nil {
			return fmt.Errorf("generated inventory is invalid: %w", err)
		}
	}

	data, err := inventory.Render(doc, format)
	if err != nil {
		return err
	}
	if opts.OutputPath == "-" {
		_, err = stdout.Write(data)
		return err
	}

	target := opts.OutputPath
	if target == "" {
		target = cfg.Paths.Inventory
	}
	target = inventory.OutputPath(target, format)
	if err := inventory.Write(target, data); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Inventory written to %s\n", target)
	fmt.Fprintf(stdout, "  %s\n", inventory.Summary(doc))
	return nil
}

func envNames() []string {
	var names []string
	for _, e := range deployment.Environments() {
		names = append(names, e.String())
	}
	return names
}
