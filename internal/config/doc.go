// Package config defines the project configuration of infractl.
//
// The [Config] struct describes where the Terraform and Ansible trees live,
// where derived artifacts (outputs, inventory, snapshots, plans, reports)
// are written, and the defaults that flow into the generated inventory.
// Every field has a default, so a project without an infractl.yaml file
// works out of the box. Per-environment overrides live under
// "environments".
package config
