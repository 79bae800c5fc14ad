// Package naming provides consistent names for the files and directories
// the orchestrator creates.
//
// Timestamps are always UTC at second resolution in the compact layout
// 20060102T150405Z so that lexical order equals chronological order.
package naming
