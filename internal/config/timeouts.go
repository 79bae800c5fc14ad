package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	Init              time.Duration // terraform init
	Validate          time.Duration // terraform validate and ansible syntax check
	Plan              time.Duration // terraform plan
	Apply             time.Duration // terraform apply and the playbook run
	Destroy           time.Duration // terraform destroy
	Credentials       time.Duration // cloud identity probe
	Ping              time.Duration // ad-hoc connectivity check
	Probe             time.Duration // a single verification check
	RetryMaxAttempts  int           // retries for network probes
	RetryInitialDelay time.Duration // first backoff delay for network probes
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - INFRACTL_TIMEOUT_INIT (default: 10m)
//   - INFRACTL_TIMEOUT_VALIDATE (default: 10m)
//   - INFRACTL_TIMEOUT_PLAN (default: 60m)
//   - INFRACTL_TIMEOUT_APPLY (default: 60m)
//   - INFRACTL_TIMEOUT_DESTROY (default: 60m)
//   - INFRACTL_TIMEOUT_CREDENTIALS (default: 15s)
//   - INFRACTL_TIMEOUT_PING (default: 30s)
//   - INFRACTL_TIMEOUT_PROBE (default: 10s)
//   - INFRACTL_RETRY_MAX_ATTEMPTS (default: 3)
//   - INFRACTL_RETRY_INITIAL_DELAY (default: 2s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		Init:              parseDuration("INFRACTL_TIMEOUT_INIT", 10*time.Minute),
		Validate:          parseDuration("INFRACTL_TIMEOUT_VALIDATE", 10*time.Minute),
		Plan:              parseDuration("INFRACTL_TIMEOUT_PLAN", 60*time.Minute),
		Apply:             parseDuration("INFRACTL_TIMEOUT_APPLY", 60*time.Minute),
		Destroy:           parseDuration("INFRACTL_TIMEOUT_DESTROY", 60*time.Minute),
		Credentials:       parseDuration("INFRACTL_TIMEOUT_CREDENTIALS", 15*time.Second),
		Ping:              parseDuration("INFRACTL_TIMEOUT_PING", 30*time.Second),
		Probe:             parseDuration("INFRACTL_TIMEOUT_PROBE", 10*time.Second),
		RetryMaxAttempts:  parseInt("INFRACTL_RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay: parseDuration("INFRACTL_RETRY_INITIAL_DELAY", 2*time.Second),
	}
}

// parseDuration parses a positive duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses a non-negative integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}

	return i
}
