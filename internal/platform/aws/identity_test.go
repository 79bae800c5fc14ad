package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSTS struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (f fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return f.out, f.err
}

func TestProbe_Success(t *testing.T) {
	t.Parallel()
	p := NewIdentityProberWithClient(fakeSTS{out: &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:iam::123456789012:user/deployer"),
		UserId:  aws.String("AIDAEXAMPLE"),
	}})

	id, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123456789012", id.Account)
	assert.Equal(t, "arn:aws:iam::123456789012:user/deployer", id.ARN)
}

func TestProbe_APIError(t *testing.T) {
	t.Parallel()
	p := NewIdentityProberWithClient(fakeSTS{err: &smithy.GenericAPIError{
		Code:    "ExpiredToken",
		Message: "The security token included in the request is expired",
	}})

	_, err := p.Probe(context.Background())
	require.Error(t, err)
	assert.Equal(t, "credential probe failed: ExpiredToken: The security token included in the request is expired", err.Error())
}

func TestProbe_PlainError(t *testing.T) {
	t.Parallel()
	p := NewIdentityProberWithClient(fakeSTS{err: errors.New("no EC2 IMDS role found")})

	_, err := p.Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no EC2 IMDS role found")
}
