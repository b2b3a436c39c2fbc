package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoAPI is the subset of *dynamodb.Client the store calls.
type dynamoAPI interface {
	dynamodb.ScanAPIClient
	dynamodb.DescribeTableAPIClient
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoStore keeps articles in a single DynamoDB table keyed by id.
type DynamoStore struct {
	client      dynamoAPI
	table       string
	createTable bool
	waitTimeout time.Duration
}

// NewDynamoStore builds a client from cfg. Static credentials and a custom
// endpoint are used when configured (the development profile sets both);
// otherwise the default AWS credential chain applies.
func NewDynamoStore(ctx context.Context, cfg *Config) (*DynamoStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.DynamoDB.Region),
	}
	if cfg.DynamoDB.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.DynamoDB.AccessKeyID, cfg.DynamoDB.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	endpoint := cfg.DynamoDB.Endpoint
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return newDynamoStore(client, cfg.Store.Table, cfg.Store.CreateTable), nil
}

func newDynamoStore(client dynamoAPI, table string, createTable bool) *DynamoStore {
	return &DynamoStore{
		client:      client,
		table:       table,
		createTable: createTable,
		waitTimeout: 2 * time.Minute,
	}
}

// EnsureSchema checks that the table exists. A missing table is created only
// when table creation is enabled.
func (s *DynamoStore) EnsureSchema(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table %s: %w", s.table, err)
	}
	if !s.createTable {
		return fmt.Errorf("table %s does not exist: %w", s.table, err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, s.waitTimeout); err != nil {
		return fmt.Errorf("failed waiting for table %s: %w", s.table, err)
	}
	return nil
}

func (s *DynamoStore) Close() error { return nil }

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*Article, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       idKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return decodeItem(out.Item)
}

func (s *DynamoStore) Put(ctx context.Context, article *Article) error {
	Normalize(article)
	item, err := attributevalue.MarshalMap(article)
	if err != nil {
		return fmt.Errorf("failed to marshal article: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to put article: %w", err)
	}
	return nil
}

// updateExpression translates a patch into a SET expression guarded by
// attribute_exists(id). Derived fields are set alongside their sources.
func updateExpression(patch Patch, now time.Time) (expression.Expression, error) {
	update := expression.Set(expression.Name("updatedAt"), expression.Value(now.UTC()))
	if patch.Title != nil {
		update = update.Set(expression.Name("title"), expression.Value(*patch.Title)).
			Set(expression.Name("lower_case_title"), expression.Value(strings.ToLower(*patch.Title)))
	}
	if patch.URL != nil {
		update = update.Set(expression.Name("url"), expression.Value(*patch.URL))
	}
	if patch.Tags != nil {
		tags := append([]string{}, (*patch.Tags)...)
		update = update.Set(expression.Name("tags"), expression.Value(tags)).
			Set(expression.Name("lower_case_tags"), expression.Value(LowerAll(tags)))
	}
	if patch.Source != nil {
		update = update.Set(expression.Name("source"), expression.Value(*patch.Source))
	}

	return expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("id"))).
		Build()
}

func (s *DynamoStore) Update(ctx context.Context, id string, patch Patch, now time.Time) (*Article, error) {
	expr, err := updateExpression(patch, now)
	if err != nil {
		return nil, fmt.Errorf("failed to build update expression: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       idKey(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, mapConditionError("update", err)
	}
	return decodeItem(out.Attributes)
}

func (s *DynamoStore) Delete(ctx context.Context, id string) (*Article, error) {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("id"))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build delete condition: %w", err)
	}

	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.table),
		Key:                      idKey(id),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
		ReturnValues:             types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, mapConditionError("delete", err)
	}
	return decodeItem(out.Attributes)
}

func mapConditionError(op string, err error) error {
	var failed *types.ConditionalCheckFailedException
	if errors.As(err, &failed) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to %s article: %w", op, err)
}

// scanFilter returns the filter condition for f, or false when f matches all.
func scanFilter(f Filter) (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder
	if f.TitlePrefix != "" {
		conds = append(conds, expression.Name("lower_case_title").BeginsWith(f.TitlePrefix))
	}
	if f.Tag != "" {
		// contains on a list attribute matches a whole element.
		conds = append(conds, expression.Name("lower_case_tags").Contains(f.Tag))
	}
	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	default:
		return conds[0].And(conds[1], conds[2:]...), true
	}
}

// Scan pages through the whole table, applying the filter server side.
func (s *DynamoStore) Scan(ctx context.Context, filter Filter) ([]Article, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.table)}
	if cond, ok := scanFilter(filter); ok {
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build scan filter: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	articles := []Article{}
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan articles: %w", err)
		}
		var batch []Article
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal articles: %w", err)
		}
		articles = append(articles, batch...)
	}
	return articles, nil
}

// ScanIDs projects only the id attribute.
func (s *DynamoStore) ScanIDs(ctx context.Context) (map[string]struct{}, error) {
	expr, err := expression.NewBuilder().
		WithProjection(expression.NamesList(expression.Name("id"))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build projection: %w", err)
	}

	ids := make(map[string]struct{})
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                aws.String(s.table),
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article ids: %w", err)
		}
		for _, item := range page.Items {
			var row struct {
				ID string `dynamodbav:"id"`
			}
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return nil, fmt.Errorf("failed to unmarshal article id: %w", err)
			}
			ids[row.ID] = struct{}{}
		}
	}
	return ids, nil
}

func decodeItem(item map[string]types.AttributeValue) (*Article, error) {
	var a Article
	if err := attributevalue.UnmarshalMap(item, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal article: %w", err)
	}
	return fixupArticle(&a), nil
}
