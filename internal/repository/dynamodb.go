package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/debemdeboas/drafthouse/internal/config"
	"github.com/debemdeboas/drafthouse/internal/model"
)

const tableWaitTimeout = 2 * time.Minute

// DynamoDBAPI is the subset of *dynamodb.Client used by DynamoDBPostRepository.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	dynamodb.ScanAPIClient
	dynamodb.DescribeTableAPIClient
}

// DynamoDBPostRepository stores one item per post, keyed by id.
type DynamoDBPostRepository struct {
	client DynamoDBAPI
	table  string
}

var _ PostRepository = (*DynamoDBPostRepository)(nil)

func NewDynamoDBClient(ctx context.Context, cfg config.DynamoDBConfig) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func NewDynamoDBPostRepository(client DynamoDBAPI, table string) *DynamoDBPostRepository {
	return &DynamoDBPostRepository{
		client: client,
		table:  table,
	}
}

// EnsureTable creates the table when it does not exist and waits for it to
// become active.
func (r *DynamoDBPostRepository) EnsureTable(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.table),
	})
	if err == nil {
		return nil
	}

	var notFoundErr *types.ResourceNotFoundException
	if !errors.As(err, &notFoundErr) {
		return fmt.Errorf("error describing table %s: %w", r.table, err)
	}

	repoLogger.Info().Str("table", r.table).Msg("Creating DynamoDB table")
	_, err = r.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(r.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("id"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("error creating table %s: %w", r.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(r.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.table),
	}, tableWaitTimeout); err != nil {
		return fmt.Errorf("error waiting for table %s: %w", r.table, err)
	}
	return nil
}

func (r *DynamoDBPostRepository) Get(ctx context.Context, id model.PostID) (*model.Post, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: string(id)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error getting item %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var post model.Post
	if err := attributevalue.UnmarshalMap(out.Item, &post); err != nil {
		return nil, fmt.Errorf("error decoding item %s: %w", id, err)
	}
	return &post, nil
}

func (r *DynamoDBPostRepository) Put(ctx context.Context, post *model.Post) error {
	item, err := attributevalue.MarshalMap(post)
	if err != nil {
		return fmt.Errorf("error encoding post %s: %w", post.ID, err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("error putting item %s: %w", post.ID, err)
	}
	return nil
}

func (r *DynamoDBPostRepository) List(ctx context.Context) ([]*model.Post, error) {
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.table),
	})

	posts := make([]*model.Post, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error scanning table %s: %w", r.table, err)
		}

		var batch []*model.Post
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("error decoding items: %w", err)
		}
		posts = append(posts, batch...)
	}

	SortPosts(posts)
	return posts, nil
}

func (r *DynamoDBPostRepository) LatestModified(ctx context.Context) (time.Time, error) {
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:            aws.String(r.table),
		ProjectionExpression: aws.String("modified_at"),
	})

	var latest time.Time
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return time.Time{}, fmt.Errorf("error scanning table %s: %w", r.table, err)
		}

		var rows []struct {
			ModifiedAt time.Time `dynamodbav:"modified_at"`
		}
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &rows); err != nil {
			return time.Time{}, fmt.Errorf("error decoding items: %w", err)
		}
		for _, row := range rows {
			if row.ModifiedAt.After(latest) {
				latest = row.ModifiedAt
			}
		}
	}
	return latest, nil
}
