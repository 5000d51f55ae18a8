package payload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxPayloadSize bounds how much a Source will read.
const MaxPayloadSize = 1 << 20

// ErrPayloadTooLarge is returned when a source holds more than MaxPayloadSize bytes.
var ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

// Source yields the raw payload string.
type Source interface {
	Load(ctx context.Context) (string, error)
}

// Inline is a payload given directly, e.g. from an environment variable.
type Inline string

// Load implements Source.
func (s Inline) Load(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// FileSource reads the payload from a local file.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s FileSource) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return "", fmt.Errorf("opening payload file: %w", err)
	}
	defer f.Close()
	return readLimited(f)
}

// ObjectGetter is the subset of the S3 client used by S3Source.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads the payload from an S3-compatible object store.
type S3Source struct {
	Client ObjectGetter
	Bucket string
	Key    string
}

// S3Options configures the S3 client built by NewS3Source.
type S3Options struct {
	Region   string
	Endpoint string
}

// NewS3Source builds an S3 client from the default AWS credential chain.
// A custom endpoint switches to path-style addressing for MinIO and friends.
func NewS3Source(ctx context.Context, bucket, key string, opts S3Options) (*S3Source, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Source{Client: client, Bucket: bucket, Key: key}, nil
}

// Load implements Source.
func (s *S3Source) Load(ctx context.Context) (string, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return "", fmt.Errorf("fetching s3://%s/%s: %w", s.Bucket, s.Key, err)
	}
	defer out.Body.Close()
	return readLimited(out.Body)
}

// OpenSource picks a Source for location: "s3://bucket/key", "file://path",
// an existing file path, or otherwise the payload itself.
func OpenSource(ctx context.Context, location string, opts S3Options) (Source, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "":
		return nil, errors.New("payload location is empty")
	case strings.HasPrefix(location, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(location, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid s3 location %q", location)
		}
		return NewS3Source(ctx, bucket, key, opts)
	case strings.HasPrefix(location, "file://"):
		return FileSource{Path: strings.TrimPrefix(location, "file://")}, nil
	}
	if fi, err := os.Stat(location); err == nil && !fi.IsDir() {
		return FileSource{Path: location}, nil
	}
	return Inline(location), nil
}

func readLimited(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxPayloadSize+1))
	if err != nil {
		return "", fmt.Errorf("reading payload: %w", err)
	}
	if len(b) > MaxPayloadSize {
		return "", ErrPayloadTooLarge
	}
	return strings.TrimSpace(string(b)), nil
}
