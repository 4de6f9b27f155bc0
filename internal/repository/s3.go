package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/debemdeboas/drafthouse/internal/config"
	"github.com/debemdeboas/drafthouse/internal/model"
)

// S3API is the subset of *s3.Client used by S3PostRepository.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3PostRepository stores each post as a JSON object named <prefix><id>.json.
type S3PostRepository struct {
	client S3API
	bucket string
	prefix string
}

var _ PostRepository = (*S3PostRepository)(nil)

// NewS3Client builds a client for AWS or any S3 compatible endpoint (R2,
// MinIO). Static credentials are used when both keys are set.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewS3PostRepository(client S3API, bucket, prefix string) *S3PostRepository {
	return &S3PostRepository{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (r *S3PostRepository) key(id model.PostID) string {
	return r.prefix + string(id) + ".json"
}

func (r *S3PostRepository) Get(ctx context.Context, id model.PostID) (*model.Post, error) {
	return r.getKey(ctx, r.key(id))
}

func (r *S3PostRepository) getKey(ctx context.Context, key string) (*model.Post, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading object %s: %w", key, err)
	}

	var post model.Post
	if err := json.Unmarshal(data, &post); err != nil {
		return nil, fmt.Errorf("error decoding object %s: %w", key, err)
	}
	return &post, nil
}

func (r *S3PostRepository) Put(ctx context.Context, post *model.Post) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("error encoding post %s: %w", post.ID, err)
	}

	key := r.key(post.ID)
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("error putting object %s: %w", key, err)
	}

	repoLogger.Debug().Str("post_id", string(post.ID)).Str("key", key).Msg("Post uploaded")
	return nil
}

// objects walks every post object under the prefix.
func (r *S3PostRepository) objects(ctx context.Context, fn func(types.Object) error) error {
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("error listing objects: %w", err)
		}

		for _, obj := range page.Contents {
			if !strings.HasSuffix(aws.ToString(obj.Key), ".json") {
				continue
			}
			if err := fn(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *S3PostRepository) List(ctx context.Context) ([]*model.Post, error) {
	posts := make([]*model.Post, 0)
	err := r.objects(ctx, func(obj types.Object) error {
		post, err := r.getKey(ctx, aws.ToString(obj.Key))
		if errors.Is(err, ErrNotFound) {
			// Deleted between list and get.
			return nil
		}
		if err != nil {
			return err
		}
		posts = append(posts, post)
		return nil
	})
	if err != nil {
		return nil, err
	}

	SortPosts(posts)
	return posts, nil
}

// LatestModified uses the object timestamps from the listing, so it does not
// download any post.
func (r *S3PostRepository) LatestModified(ctx context.Context) (time.Time, error) {
	var latest time.Time
	err := r.objects(ctx, func(obj types.Object) error {
		if t := aws.ToTime(obj.LastModified); t.After(latest) {
			latest = t
		}
		return nil
	})
	return latest, err
}
