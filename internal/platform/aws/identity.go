// Package aws probes cloud credentials before any stateful action.
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// Identity is the caller identity reported by STS.
type Identity struct {
	Account string
	ARN     string
	UserID  string
}

// STSAPI is the subset of the STS client used here.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// IdentityProber checks that the default credential chain resolves to a
// valid identity.
type IdentityProber struct {
	client STSAPI
}

// NewIdentityProber loads the default AWS configuration for region (empty
// means the configured default) and returns a prober.
func NewIdentityProber(ctx context.Context, region string) (*IdentityProber, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &IdentityProber{client: sts.NewFromConfig(cfg)}, nil
}

// NewIdentityProberWithClient returns a prober over an existing client.
func NewIdentityProberWithClient(client STSAPI) *IdentityProber {
	return &IdentityProber{client: client}
}

// Probe calls sts:GetCallerIdentity.
func (p *IdentityProber) Probe(ctx context.Context) (Identity, error) {
	out, err := p.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("credential probe failed: %s", describe(err))
	}
	return Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

// describe shortens SDK errors to their code and message.
func describe(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err.Error()
}
