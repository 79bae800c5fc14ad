// Package ssh runs short commands on provisioned hosts over SSH.
//
// One Client holds a parsed key and dials a fresh connection per command,
// so a single client can serve every host in an inventory. Host keys are
// checked against a known_hosts file when one is configured; otherwise they
// are accepted, which suits hosts that were created minutes ago.
package ssh
