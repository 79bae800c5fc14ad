// Package retry retries transient operations with exponential backoff.
//
// It is used for network probes (SSH, credential checks, remote uploads)
// whose first attempt may fail while a freshly provisioned host is still
// booting. Errors wrapped with Fatal are returned immediately.
package retry
