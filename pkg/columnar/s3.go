package columnar

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/deltashare/pkg/config"
	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/logger"
)

const defaultS3PartSize = 8 * 1024 * 1024

// S3Opener downloads s3://bucket/key objects with the transfer manager. The
// client is created from the default AWS credential chain on first use
// unless one is supplied.
type S3Opener struct {
	cfg    config.S3Config
	logger *zap.Logger

	once       sync.Once
	initErr    error
	client     manager.DownloadAPIClient
	downloader *manager.Downloader
}

// NewS3Opener creates an opener that builds its client lazily from cfg
func NewS3Opener(cfg config.S3Config, log *zap.Logger) *S3Opener {
	return &S3Opener{
		cfg:    cfg,
		logger: logger.OrNop(log).With(zap.String("component", "s3_opener")),
	}
}

// NewS3OpenerWithClient creates an opener around an existing client
func NewS3OpenerWithClient(client manager.DownloadAPIClient, log *zap.Logger) *S3Opener {
	o := NewS3Opener(config.S3Config{}, log)
	o.client = client
	return o
}

// Open downloads the whole object named by rawURL
func (o *S3Opener) Open(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := splitObjectURL(rawURL, SchemeS3)
	if err != nil {
		return nil, err
	}
	if e := errors.FromContext(ctx); e != nil {
		return nil, e.WithDetail(errors.DetailURL, rawURL)
	}
	if err := o.init(ctx); err != nil {
		return nil, err
	}

	buf := manager.NewWriteAtBuffer(nil)
	n, err := o.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if e := errors.FromContext(ctx); e != nil {
			return nil, e.WithDetail(errors.DetailURL, rawURL)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, "failed to download S3 object").
			WithDetail(errors.DetailURL, rawURL)
	}

	o.logger.Debug("downloaded S3 object",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int64("bytes", n))
	return buf.Bytes()[:n], nil
}

// init runs once per opener; the client outlives ctx so cancellation is
// dropped here.
func (o *S3Opener) init(ctx context.Context) error {
	o.once.Do(func() {
		if o.client == nil {
			cfg, err := awsconfig.LoadDefaultConfig(context.WithoutCancel(ctx), awsconfig.WithRegion(o.cfg.Region))
			if err != nil {
				o.initErr = errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
				return
			}
			o.client = s3.NewFromConfig(cfg, func(opts *s3.Options) {
				if o.cfg.Endpoint != "" {
					opts.BaseEndpoint = aws.String(o.cfg.Endpoint)
				}
				opts.UsePathStyle = o.cfg.ForcePathStyle
			})
		}
		o.downloader = manager.NewDownloader(o.client, func(d *manager.Downloader) {
			d.PartSize = defaultS3PartSize
		})
	})
	return o.initErr
}

// splitObjectURL splits scheme://bucket/key into its bucket and key
func splitObjectURL(rawURL, scheme string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", errors.Wrap(err, errors.ErrorTypeValidation, "invalid object URL").
			WithDetail(errors.DetailURL, rawURL)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if !strings.EqualFold(u.Scheme, scheme) || u.Host == "" || key == "" {
		return "", "", errors.Newf(errors.ErrorTypeValidation, "object URL must look like %s://bucket/key", scheme).
			WithDetail(errors.DetailURL, rawURL)
	}
	return u.Host, key, nil
}
