// Package aws reads EC2 and IAM state and assembles it into the records in
// internal/models. Every call is read-only.
package aws

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/hashicorp/go-cleanhttp"

	"github.com/hemantobora/cloudcheck/internal/log"
	"github.com/hemantobora/cloudcheck/internal/models"
)

// DefaultRegion is used when neither an option nor the environment names one
const DefaultRegion = "eu-central-1"

type options struct {
	profile    string
	region     string
	httpClient aws.HTTPClient
}

// Option customizes how the AWS config is loaded
type Option func(*options)

// WithProfile selects a shared config profile. Without it the default chain
// applies, starting with AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY.
func WithProfile(profile string) Option {
	return func(o *options) { o.profile = profile }
}

// WithRegion overrides the region from the environment or profile
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithHTTPClient replaces the pooled client every service client shares. A
// plain *http.Client cannot take a custom CA bundle from AWS_CA_BUNDLE or
// the profile's ca_bundle.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = awshttp.NewBuildableClient().WithTransportOptions(pooled)
	}
	return o
}

// pooled applies the keep-alive and pool settings of cleanhttp's pooled
// transport. The SDK layers its own TLS options (custom root CAs) on top.
func pooled(tr *http.Transport) {
	p := cleanhttp.DefaultPooledTransport()
	tr.Proxy = p.Proxy
	tr.DialContext = p.DialContext
	tr.MaxIdleConns = p.MaxIdleConns
	tr.MaxIdleConnsPerHost = p.MaxIdleConnsPerHost
	tr.IdleConnTimeout = p.IdleConnTimeout
	tr.TLSHandshakeTimeout = p.TLSHandshakeTimeout
	tr.ExpectContinueTimeout = p.ExpectContinueTimeout
	tr.ForceAttemptHTTP2 = p.ForceAttemptHTTP2
}

func loadConfig(ctx context.Context, o *options) (aws.Config, error) {
	log.Debugf("loading aws config: profile=%q region=%q", o.profile, o.region)

	loadOpts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(o.httpClient),
	}
	if o.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(o.profile))
	}
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, &models.ProviderError{
			Service:   "aws",
			Operation: "load-config",
			Resource:  fmt.Sprintf("profile:%s", o.profile),
			Cause:     err,
		}
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg, nil
}

// Session owns the service clients for one run of checks. Acquire it once
// with NewSession and release it with Close when the run is over.
type Session struct {
	Config aws.Config
	EC2    *ec2.Client
	IAM    *iam.Client
	STS    *sts.Client

	closeOnce sync.Once
}

// NewSession loads the config and builds the EC2, IAM and STS clients over
// one shared HTTP client
func NewSession(ctx context.Context, opts ...Option) (*Session, error) {
	o := applyOptions(opts)
	cfg, err := loadConfig(ctx, o)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Config: cfg,
		EC2:    ec2.NewFromConfig(cfg),
		IAM:    iam.NewFromConfig(cfg),
		STS:    sts.NewFromConfig(cfg),
	}
	log.Debugf("aws session opened in %s", cfg.Region)
	return s, nil
}

// Region returns the region the session's clients talk to
func (s *Session) Region() string {
	return s.Config.Region
}

// Close releases the session's idle connections. It is safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		// config loading may have replaced the client, so close the one in use
		if c, ok := s.Config.HTTPClient.(interface{ CloseIdleConnections() }); ok {
			c.CloseIdleConnections()
		}
		log.Debugf("aws session closed")
	})
}

// CallerIdentity reports which account and principal the session runs as
func (s *Session) CallerIdentity(ctx context.Context) (models.AccountInfo, error) {
	return callerIdentity(ctx, s.STS, s.Region())
}

// IdentityCaller is the subset of the STS client used for identity lookups
type IdentityCaller interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

func callerIdentity(ctx context.Context, client IdentityCaller, region string) (models.AccountInfo, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return models.AccountInfo{}, apiError("sts", "GetCallerIdentity", "caller", err)
	}
	return models.AccountInfo{
		AccountID: aws.ToString(out.Account),
		UserID:    aws.ToString(out.UserId),
		ARN:       aws.ToString(out.Arn),
		Region:    region,
	}, nil
}

// ValidateCredentials checks that the configured credentials are accepted
func ValidateCredentials(ctx context.Context, opts ...Option) (models.AccountInfo, error) {
	s, err := NewSession(ctx, opts...)
	if err != nil {
		return models.AccountInfo{}, err
	}
	defer s.Close()
	return s.CallerIdentity(ctx)
}
