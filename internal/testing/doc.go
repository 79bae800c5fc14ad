// Package testing provides fakes, builders, and fixtures for unit and
// end-to-end tests.
//
// This package centralizes common testing patterns to avoid duplication across test files:
//   - ProjectBuilder: Fluent builder for an on-disk project tree and its config
//   - FakeProvisioner, FakeConfigTool: Recording fakes of the tool adapters
//   - RecordingObserver: Captures orchestration events
//   - Outputs fixtures: Provisioning outputs in `terraform output -json` form
//
// Usage:
//
//	cfg := testing.NewProjectBuilder().
//	    WithState(deployment.EnvDev, `{"version":4}`).
//	    WithOutputs(testing.OutputsJSON).
//	    Build(t)
//
//	tool := testing.NewFakeProvisioner().WithChanges(true)
package testing
