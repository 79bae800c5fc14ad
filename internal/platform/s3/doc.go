// Package s3 provides a small S3 client used to mirror backup snapshots
// off the machine that runs the deployment.
//
// Credentials come from the default AWS chain unless static keys are
// given, which is useful for S3-compatible stores such as MinIO.
package s3
