// Package async runs independent checks concurrently and collects every
// outcome, so a report can show which ones passed and which failed.
package async
