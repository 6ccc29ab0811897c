package columnar

import (
	"context"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/deltashare/pkg/config"
	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/logger"
)

// GCSOpener reads gs://bucket/object URLs. The storage client is created on
// first use so that configurations without Google credentials still work for
// other schemes.
type GCSOpener struct {
	cfg    config.GCSConfig
	logger *zap.Logger

	once    sync.Once
	initErr error
	client  *storage.Client
}

// NewGCSOpener creates an opener that builds its client lazily from cfg
func NewGCSOpener(cfg config.GCSConfig, log *zap.Logger) *GCSOpener {
	return &GCSOpener{
		cfg:    cfg,
		logger: logger.OrNop(log).With(zap.String("component", "gcs_opener")),
	}
}

// Open reads the whole object named by rawURL
func (o *GCSOpener) Open(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, object, err := splitObjectURL(rawURL, SchemeGS)
	if err != nil {
		return nil, err
	}
	if e := errors.FromContext(ctx); e != nil {
		return nil, e.WithDetail(errors.DetailURL, rawURL)
	}
	if err := o.init(ctx); err != nil {
		return nil, err
	}

	r, err := o.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, o.wrap(ctx, err, rawURL)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, o.wrap(ctx, err, rawURL)
	}

	o.logger.Debug("read GCS object",
		zap.String("bucket", bucket),
		zap.String("object", object),
		zap.Int("bytes", len(data)))
	return data, nil
}

// Close releases the storage client if it was created
func (o *GCSOpener) Close() error {
	if o.client == nil {
		return nil
	}
	return o.client.Close()
}

// init runs once per opener; the client outlives ctx so cancellation is
// dropped here.
func (o *GCSOpener) init(ctx context.Context) error {
	o.once.Do(func() {
		var opts []option.ClientOption
		if o.cfg.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(o.cfg.Endpoint))
		}
		if o.cfg.Anonymous {
			opts = append(opts, option.WithoutAuthentication())
		}

		client, err := storage.NewClient(context.WithoutCancel(ctx), opts...)
		if err != nil {
			o.initErr = errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
			return
		}
		o.client = client
	})
	return o.initErr
}

func (o *GCSOpener) wrap(ctx context.Context, err error, rawURL string) error {
	if e := errors.FromContext(ctx); e != nil {
		return e.WithDetail(errors.DetailURL, rawURL)
	}
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return errors.Wrap(err, errors.ErrorTypeNotFound, "GCS object not found").
			WithDetail(errors.DetailURL, rawURL)
	}
	return errors.Wrap(err, errors.ErrorTypeTransport, "failed to read GCS object").
		WithDetail(errors.DetailURL, rawURL)
}
