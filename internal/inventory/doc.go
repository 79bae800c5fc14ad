// Package inventory turns provisioning outputs into an Ansible inventory.
//
// Generation is a pure function of the output set, the environment and the
// configured defaults: the same inputs always render to identical bytes.
// Role assignment is driven by the [Rules] table rather than by matching
// output names throughout the code.
package inventory
