package fetchs3

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/batchfetch/internal/utils"
)

// ObjectAPI is the subset of the S3 client the source needs.
type ObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source reads s3://bucket/key URLs. The AWS client is created on first use
// so batches without S3 URLs never load AWS configuration.
type Source struct {
	profile  string
	endpoint string

	once    sync.Once
	client  ObjectAPI
	initErr error
}

// NewSource loads AWS config for profile on first use. A non-empty endpoint
// targets an S3-compatible store with path-style addressing.
func NewSource(profile, endpoint string) *Source {
	return &Source{profile: profile, endpoint: endpoint}
}

// NewSourceWithClient uses an existing client instead of loading AWS config.
func NewSourceWithClient(client ObjectAPI) *Source {
	s := &Source{client: client}
	s.once.Do(func() {})
	return s
}

func (s *Source) getClient(ctx context.Context) (ObjectAPI, error) {
	s.once.Do(func() {
		// A failed request fails its target; the SDK must not retry it.
		opts := []func(*config.LoadOptions) error{
			config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
		}
		if s.profile != "" {
			opts = append(opts, config.WithSharedConfigProfile(s.profile))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			s.initErr = fmt.Errorf("error loading AWS config: %v", err)
			return
		}
		s.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if s.endpoint != "" {
				o.BaseEndpoint = aws.String(s.endpoint)
				o.UsePathStyle = true
			}
		})
		log.Debug().Str("op", "s3/source").Str("profile", s.profile).Str("endpoint", s.endpoint).Msg("S3 client initialized")
	})
	return s.client, s.initErr
}

// ParseURL splits s3://bucket/key into its bucket and key.
func ParseURL(rawURL string) (bucket, key string, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URL %s: %w", rawURL, err)
	}
	if parsed.Scheme != "s3" {
		return "", "", fmt.Errorf("%w: %s", utils.ErrUnsupportedScheme, parsed.Scheme)
	}
	bucket = parsed.Host
	key = strings.TrimPrefix(parsed.Path, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("S3 URL %s must name a bucket and an object key", rawURL)
	}
	return bucket, key, nil
}

func (s *Source) Size(ctx context.Context, rawURL string) (int64, error) {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return 0, err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return 0, err
	}
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("error getting object info for %s: %w", rawURL, err)
	}
	if head.ContentLength == nil || *head.ContentLength < 0 {
		return 0, &utils.SizeUnavailableError{URL: rawURL, Name: path.Base(key)}
	}
	return *head.ContentLength, nil
}

func (s *Source) OpenRange(ctx context.Context, rawURL string, offset int64) (*utils.RangeResponse, error) {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	// S3 rejects "bytes=0-" on empty objects, so offset 0 is a plain GET.
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	result, err := client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error getting object %s: %w", rawURL, err)
	}
	if offset == 0 {
		return &utils.RangeResponse{Body: result.Body, Offset: 0, Partial: false}, nil
	}
	if result.ContentRange == nil {
		return &utils.RangeResponse{Body: result.Body, Offset: 0, Partial: false}, nil
	}
	if start, ok := utils.ContentRangeStart(*result.ContentRange); ok && start != offset {
		result.Body.Close()
		return nil, fmt.Errorf("%w: asked for %d, got %d from %s", utils.ErrRangeMismatch, offset, start, rawURL)
	}
	return &utils.RangeResponse{Body: result.Body, Offset: offset, Partial: true}, nil
}
