package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

const deleteBatchSize = 1000

type s3Adapter struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	logger   logger.Logger
}

// LoadAWSConfig builds the shared SDK config from the app config.
func LoadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWS.Region)}
	if cfg.AWS.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("cannot load aws config: %w", err)
	}
	return awsCfg, nil
}

func NewS3Adapter(awsCfg aws.Config, cfg config.Config, log logger.Logger, optFns ...func(*s3.Options)) service.ObjectStore {
	client := s3.NewFromConfig(awsCfg, optFns...)
	return newS3Adapter(client, cfg.Storage.UploadPartSizeMB, log)
}

func newS3Adapter(client *s3.Client, partSizeMB int64, log logger.Logger) *s3Adapter {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if partSizeMB > 0 {
			u.PartSize = partSizeMB * 1024 * 1024
		}
	})
	return &s3Adapter{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: uploader,
		logger:   log,
	}
}

func (a *s3Adapter) List(ctx context.Context, bucket, prefix string) iter.Seq2[service.ObjectInfo, error] {
	return func(yield func(service.ObjectInfo, error) bool) {
		p := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				yield(service.ObjectInfo{}, classify(err, "list "+bucket+"/"+prefix))
				return
			}
			for _, obj := range page.Contents {
				info := service.ObjectInfo{
					Key:          aws.ToString(obj.Key),
					Size:         aws.ToInt64(obj.Size),
					LastModified: aws.ToTime(obj.LastModified),
				}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

func (a *s3Adapter) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(srcBucket, srcKey)),
	})
	if err != nil {
		return classify(err, fmt.Sprintf("copy %s/%s to %s/%s", srcBucket, srcKey, dstBucket, dstKey))
	}
	return nil
}

func (a *s3Adapter) Move(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if srcBucket == dstBucket && srcKey == dstKey {
		return nil
	}
	if err := a.Copy(ctx, srcBucket, srcKey, dstBucket, dstKey); err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	return a.Delete(ctx, srcBucket, srcKey)
}

func (a *s3Adapter) MovePrefix(ctx context.Context, bucket, srcPrefix, dstPrefix string) error {
	var keys []string
	for obj, err := range a.List(ctx, bucket, srcPrefix) {
		if err != nil {
			return err
		}
		keys = append(keys, obj.Key)
	}
	for _, key := range keys {
		dst := dstPrefix + strings.TrimPrefix(key, srcPrefix)
		if err := a.Move(ctx, bucket, key, bucket, dst); err != nil {
			return err
		}
	}
	return nil
}

func (a *s3Adapter) Delete(ctx context.Context, bucket, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(err, "delete "+bucket+"/"+key)
	}
	return nil
}

func (a *s3Adapter) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	if prefix == "" {
		return apperror.NewInvalidInput("refusing to delete an entire bucket", nil)
	}
	batch := make([]types.ObjectIdentifier, 0, deleteBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		out, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return classify(err, "delete prefix "+bucket+"/"+prefix)
		}
		batch = batch[:0]
		return deleteErrors(bucket, prefix, out.Errors, a.logger)
	}

	for obj, err := range a.List(ctx, bucket, prefix) {
		if err != nil {
			return err
		}
		batch = append(batch, types.ObjectIdentifier{Key: aws.String(obj.Key)})
		if len(batch) == deleteBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// deleteErrors turns the per-key failures of a batch delete into one storage
// error. It is retriable only when every failure is a throttle or server fault.
func deleteErrors(bucket, prefix string, errs []types.Error, log logger.Logger) error {
	if len(errs) == 0 {
		return nil
	}
	retriable := true
	for _, e := range errs {
		code := aws.ToString(e.Code)
		log.Warn("S3 refused to delete object",
			zap.String("bucket", bucket), zap.String("key", aws.ToString(e.Key)), zap.String("code", code))
		switch code {
		case "InternalError", "SlowDown", "ServiceUnavailable":
		default:
			retriable = false
		}
	}
	first := errs[0]
	details := fmt.Sprintf("delete prefix %s/%s: %d objects not deleted, first %s (%s)",
		bucket, prefix, len(errs), aws.ToString(first.Key), aws.ToString(first.Code))
	return apperror.NewStorage(retriable, details, nil)
}

func (a *s3Adapter) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err, "get "+bucket+"/"+key)
	}
	return out.Body, nil
}

func (a *s3Adapter) StreamUpload(ctx context.Context, bucket, key string, r io.Reader, contentType string, progress service.ProgressFunc) error {
	pr := newProgressReader(r, progress, 0)
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   pr,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := a.uploader.Upload(ctx, input); err != nil {
		return classify(err, "upload "+bucket+"/"+key)
	}
	pr.done()
	return nil
}

func (a *s3Adapter) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", apperror.NewStorage(false, "presign "+bucket+"/"+key, err)
	}
	return req.URL, nil
}

func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

// classify maps SDK errors onto the storage taxonomy: 403/404 and other client
// errors are permanent, throttling, 5xx and transport failures are retriable.
func classify(err error, details string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		status := re.HTTPStatusCode()
		switch {
		case status == http.StatusTooManyRequests || status >= 500:
			return apperror.NewStorage(true, details, err)
		case status == http.StatusNotFound:
			return apperror.NewAppError(apperror.ErrPermanentStorage, "Object not found", details, &notFoundError{err})
		default:
			return apperror.NewStorage(false, details, err)
		}
	}
	return apperror.NewStorage(true, details, err)
}

type notFoundError struct{ err error }

func (e *notFoundError) Error() string { return e.err.Error() }
func (e *notFoundError) Unwrap() error { return e.err }

func isNotFound(err error) bool {
	var nf *notFoundError
	return errors.As(err, &nf)
}
