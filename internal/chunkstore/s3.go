package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sir_venger/chunk_lite/internal/models"
)

const (
	defaultS3PartSize = 16 * 1024 * 1024
	// S3 принимает не больше 1000 ключей в одном DeleteObjects.
	maxDeleteBatch = 1000
)

var errArtifactAborted = errors.New("artifact aborted")

// S3API: подмножество клиента S3, которым пользуется хранилище.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListMultipartUploads(ctx context.Context, params *s3.ListMultipartUploadsInput, optFns ...func(*s3.Options)) (*s3.ListMultipartUploadsOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Params описывает подключение к бакету.
type S3Params struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PartSize        int64
}

// S3 хранит чанки как объекты <prefix><sessionKey>/<index>, итоговые файлы как <prefix><filename>.
type S3 struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ Store = (*S3)(nil)

// NewS3 загружает AWS-конфигурацию и создаёт хранилище поверх бакета.
func NewS3(ctx context.Context, p S3Params) (*S3, error) {
	if p.Region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(p.Region),
	}
	if p.AccessKeyID != "" && p.SecretAccessKey != "" {
		opts = append(opts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(p.AccessKeyID, p.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if p.Endpoint != "" {
			// MinIO и прочие S3-совместимые стораджи.
			o.BaseEndpoint = aws.String(p.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3WithClient(client, p)
}

// NewS3WithClient собирает хранилище поверх готового клиента.
func NewS3WithClient(client S3API, p S3Params) (*S3, error) {
	if p.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}
	partSize := p.PartSize
	if partSize < manager.MinUploadPartSize {
		partSize = defaultS3PartSize
	}

	prefix := strings.TrimLeft(p.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
		bucket: p.Bucket,
		prefix: prefix,
	}, nil
}

func (s *S3) sessionPrefix(key string) (string, error) {
	if err := models.ValidateSessionKey(key); err != nil {
		return "", err
	}
	return s.prefix + key + "/", nil
}

// Put загружает чанк через Uploader: объект появляется только после успешного завершения загрузки.
func (s *S3) Put(ctx context.Context, key string, index int, r io.Reader) error {
	if err := models.ValidateIndex(index); err != nil {
		return err
	}
	prefix, err := s.sessionPrefix(key)
	if err != nil {
		return err
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(prefix + strconv.Itoa(index)),
		Body:        ContextReader(ctx, r),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return s3Err(fmt.Sprintf("put chunk %d", index), err)
	}

	return nil
}

// ListIndices перечисляет объекты сессии и оставляет только числовые имена.
func (s *S3) ListIndices(ctx context.Context, key string) ([]int, error) {
	prefix, err := s.sessionPrefix(key)
	if err != nil {
		return nil, err
	}

	var names []string
	err = s.walk(ctx, prefix, func(obj types.Object) {
		names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), prefix))
	})
	if err != nil {
		return nil, err
	}

	return sortedIndices(names), nil
}

// ReadOrdered открывает чанки через GetObject по мере продвижения итератора.
func (s *S3) ReadOrdered(ctx context.Context, key string) (Iterator, error) {
	indices, err := s.ListIndices(ctx, key)
	if err != nil {
		return nil, err
	}
	prefix, _ := s.sessionPrefix(key)

	return newOrderedIterator(indices, func(ctx context.Context, idx int) (io.ReadCloser, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(prefix + strconv.Itoa(idx)),
		})
		if err != nil {
			return nil, s3Err(fmt.Sprintf("get chunk %d", idx), err)
		}
		return out.Body, nil
	}), nil
}

// DeleteSession удаляет все объекты под префиксом сессии пачками.
func (s *S3) DeleteSession(ctx context.Context, key string) error {
	prefix, err := s.sessionPrefix(key)
	if err != nil {
		return err
	}

	var ids []types.ObjectIdentifier
	err = s.walk(ctx, prefix, func(obj types.Object) {
		ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
	})
	if err != nil {
		return err
	}

	for start := 0; start < len(ids); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(ids))
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids[start:end]},
		})
		if err != nil {
			return s3Err("delete session", err)
		}
		if out != nil && len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("%w: delete session: %s: %s (%s)", models.ErrStorage,
				aws.ToString(first.Key), aws.ToString(first.Message), aws.ToString(first.Code))
		}
	}

	return nil
}

// CreateArtifact стримит итоговый файл в S3 через io.Pipe; без Commit объект не создаётся.
func (s *S3) CreateArtifact(ctx context.Context, name string) (ArtifactWriter, error) {
	if err := models.ValidateFilename(name); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	uploadCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)

	go func() {
		_, err := s.uploader.Upload(uploadCtx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.prefix + name),
			Body:        pr,
			ContentType: aws.String("application/octet-stream"),
		})
		// Разблокируем писателя, если загрузка упала раньше, чем он закончил.
		_ = pr.CloseWithError(err)
		done <- err
	}()

	return &s3Artifact{pw: pw, cancel: cancel, done: done}, nil
}

// ListSessions группирует объекты по первому сегменту ключа.
func (s *S3) ListSessions(ctx context.Context) ([]models.SessionInfo, error) {
	byKey := map[string]*models.SessionInfo{}
	var order []string

	err := s.walk(ctx, s.prefix, func(obj types.Object) {
		rest := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
		key, name, ok := strings.Cut(rest, "/")
		if !ok || key == "" {
			// Объект без каталога это собранный файл, а не чанк.
			return
		}

		info, seen := byKey[key]
		if !seen {
			info = &models.SessionInfo{Key: key}
			byKey[key] = info
			order = append(order, key)
		}
		if _, isChunk := parseIndex(name); isChunk {
			info.Chunks++
		}
		if obj.LastModified != nil && obj.LastModified.After(info.UpdatedAt) {
			info.UpdatedAt = *obj.LastModified
		}
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.SessionInfo, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out, nil
}

// PurgeStaged прерывает multipart-загрузки под префиксом, начатые раньше before.
// Uploader сам прерывает их при ошибке, но не при падении процесса.
func (s *S3) PurgeStaged(ctx context.Context, before time.Time) (int, error) {
	in := &s3.ListMultipartUploadsInput{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}

	removed := 0
	for {
		page, err := s.client.ListMultipartUploads(ctx, in)
		if err != nil {
			return removed, s3Err("list multipart uploads", err)
		}

		for _, u := range page.Uploads {
			if u.Initiated == nil || !u.Initiated.Before(before) {
				continue
			}
			_, err = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
				Bucket:   aws.String(s.bucket),
				Key:      u.Key,
				UploadId: u.UploadId,
			})
			if err != nil {
				return removed, s3Err("abort multipart upload", err)
			}
			removed++
		}

		if !aws.ToBool(page.IsTruncated) {
			return removed, nil
		}
		in.KeyMarker = page.NextKeyMarker
		in.UploadIdMarker = page.NextUploadIdMarker
	}
}

// Ping проверяет доступ к бакету.
func (s *S3) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return s3Err("head bucket", err)
	}
	return nil
}

func (s *S3) walk(ctx context.Context, prefix string, fn func(types.Object)) error {
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return s3Err("list objects", err)
		}
		for _, obj := range page.Contents {
			fn(obj)
		}
	}
	return nil
}

type s3Artifact struct {
	pw       *io.PipeWriter
	cancel   context.CancelFunc
	done     chan error
	finished bool
}

func (a *s3Artifact) Write(p []byte) (int, error) {
	n, err := a.pw.Write(p)
	if err != nil {
		return n, s3Err("write artifact", err)
	}
	return n, nil
}

func (a *s3Artifact) Commit() error {
	if a.finished {
		return fmt.Errorf("artifact already finished")
	}
	a.finished = true
	defer a.cancel()

	_ = a.pw.Close()
	if err := <-a.done; err != nil {
		return s3Err("upload artifact", err)
	}
	return nil
}

func (a *s3Artifact) Abort() error {
	if a.finished {
		return nil
	}
	a.finished = true

	_ = a.pw.CloseWithError(errArtifactAborted)
	a.cancel()
	// Uploader сам прерывает multipart-загрузку при ошибке чтения.
	<-a.done
	return nil
}

// s3Err добавляет к ошибке код S3, если он есть.
func s3Err(op string, err error) error {
	if isPassthrough(err) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: s3 %s: %w", models.ErrStorage, op, apiErr.ErrorCode(), err)
	}
	return storageErr(op, err)
}
