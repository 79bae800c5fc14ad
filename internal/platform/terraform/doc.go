// Package terraform implements provisioning.Tool on top of
// hashicorp/terraform-exec.
//
// Tool output is streamed to the configured writers while the tail of
// stderr is kept so that state lock contention can be recognised and
// reported as *deployment.StateLockedError.
package terraform
