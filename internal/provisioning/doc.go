// Package provisioning drives the infrastructure lifecycle of one
// environment: init, workspace selection, validate, plan, apply and
// destroy.
//
// The Driver talks to the provisioning tool only through the [Tool]
// interface, so it can be exercised with a fake. It enforces the rules that
// make a run safe to repeat:
//
//   - apply only ever applies the artifact produced by the preceding plan,
//     and only while the variable file it was planned with is unchanged;
//   - destroy requires the environment-specific confirmation token;
//   - dry-run replaces every mutating call with a logged statement of intent.
package provisioning
