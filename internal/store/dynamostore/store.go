// Package dynamostore implements store.Store against an Amazon DynamoDB table.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/radiojournal/backend/internal/store"
	"go.uber.org/zap"
)

const (
	defaultTableName = "radiojournal"
	tableWaitTimeout = 2 * time.Minute

	reasonConditionalCheckFailed = "ConditionalCheckFailed"
	reasonTransactionConflict    = "TransactionConflict"
)

var errMissingClient = errors.New("dynamostore: client is required")

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Config carries connection settings. Endpoint overrides the service URL for
// DynamoDB-local or LocalStack.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	TableName       string
	Logger          *zap.Logger
}

// Store is bound to a single table.
type Store struct {
	api    API
	table  string
	logger *zap.Logger
}

func newAWSConfig(ctx context.Context, c Config) (aws.Config, error) {
	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion(c.Region),
	)
	if err != nil {
		return aws.Config{}, err
	}

	if c.SecretAccessKey != "" && c.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")
	}

	return cfg, nil
}

// Open builds a DynamoDB client from cfg. The table is not created; see EnsureTable.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := newAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return New(client, cfg.TableName, cfg.Logger)
}

// New binds api to table.
func New(api API, table string, logger *zap.Logger) (*Store, error) {
	if api == nil {
		return nil, errMissingClient
	}
	if table == "" {
		table = defaultTableName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{api: api, table: table, logger: logger}, nil
}

// TableName reports the bound table.
func (s *Store) TableName() string {
	return s.table
}

func buildCreateTableInput(tableName string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(store.AttrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(store.AttrSK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(store.AttrGSI1PK), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(store.AttrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(store.AttrSK), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(store.IndexGSI1),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String(store.AttrGSI1PK), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String(store.AttrSK), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{
					ProjectionType:   types.ProjectionTypeInclude,
					NonKeyAttributes: []string{"id", "track_id"},
				},
			},
		},
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
	}
}

// EnsureTable creates the table with its secondary index unless it already exists.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		s.logger.Info("dynamodb table exists", zap.String("table", s.table))
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return translate("describe table", err)
	}

	s.logger.Info("creating dynamodb table", zap.String("table", s.table))
	if _, err := s.api.CreateTable(ctx, buildCreateTableInput(s.table)); err != nil {
		return translate("create table", err)
	}
	waiter := dynamodb.NewTableExistsWaiter(s.api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, tableWaitTimeout); err != nil {
		return translate("wait for table", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key store.Key, opts store.GetOptions) (store.Record, error) {
	input := &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyAttributes(key),
		ConsistentRead: aws.Bool(opts.ConsistentRead),
	}
	if len(opts.Projection) > 0 {
		expr, err := expression.NewBuilder().WithProjection(projection(opts.Projection)).Build()
		if err != nil {
			return nil, fmt.Errorf("dynamostore: build projection: %w", err)
		}
		input.ProjectionExpression = expr.Projection()
		input.ExpressionAttributeNames = expr.Names()
	}

	result, err := s.api.GetItem(ctx, input)
	if err != nil {
		return nil, translate("get item", err)
	}
	if len(result.Item) == 0 {
		return nil, store.ErrNotFound
	}
	return record(result.Item), nil
}

func (s *Store) Put(ctx context.Context, put store.Put) error {
	input, err := s.buildPut(put)
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 input.TableName,
		Item:                      input.Item,
		ConditionExpression:       input.ConditionExpression,
		ExpressionAttributeNames:  input.ExpressionAttributeNames,
		ExpressionAttributeValues: input.ExpressionAttributeValues,
	})
	if err != nil {
		return translate("put item", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, update store.Update) error {
	input, err := s.buildUpdate(update)
	if err != nil {
		return err
	}
	_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 input.TableName,
		Key:                       input.Key,
		UpdateExpression:          input.UpdateExpression,
		ConditionExpression:       input.ConditionExpression,
		ExpressionAttributeNames:  input.ExpressionAttributeNames,
		ExpressionAttributeValues: input.ExpressionAttributeValues,
	})
	if err != nil {
		return translate("update item", err)
	}
	return nil
}

func (s *Store) Transact(ctx context.Context, ops []store.WriteOp) error {
	items := make([]types.TransactWriteItem, 0, len(ops))
	for index, op := range ops {
		switch {
		case op.Put != nil:
			put, err := s.buildPut(*op.Put)
			if err != nil {
				return err
			}
			items = append(items, types.TransactWriteItem{Put: put})
		case op.Update != nil:
			update, err := s.buildUpdate(*op.Update)
			if err != nil {
				return err
			}
			items = append(items, types.TransactWriteItem{Update: update})
		default:
			return fmt.Errorf("dynamostore: empty write operation at %d", index)
		}
	}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return translate("transact write items", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, query store.Query) (store.Page, error) {
	partitionAttr := store.AttrPK
	if query.Index == store.IndexGSI1 {
		partitionAttr = store.AttrGSI1PK
	}

	keyCondition := expression.Key(partitionAttr).Equal(expression.Value(query.PartitionKey))
	if query.SortPrefix != "" {
		keyCondition = keyCondition.And(expression.Key(store.AttrSK).BeginsWith(query.SortPrefix))
	}
	if query.SortBetween != nil {
		keyCondition = keyCondition.And(expression.Key(store.AttrSK).Between(
			expression.Value(query.SortBetween.Low),
			expression.Value(query.SortBetween.High),
		))
	}

	builder := expression.NewBuilder().WithKeyCondition(keyCondition)
	if len(query.Filters) > 0 {
		filter, err := conditionExpression(query.Filters)
		if err != nil {
			return store.Page{}, err
		}
		builder = builder.WithFilter(filter)
	}
	if len(query.Projection) > 0 {
		builder = builder.WithProjection(projection(query.Projection))
	}
	expr, err := builder.Build()
	if err != nil {
		return store.Page{}, fmt.Errorf("dynamostore: build query: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!query.Descending),
	}
	if query.Index != "" {
		input.IndexName = aws.String(query.Index)
	}
	if query.Limit > 0 {
		input.Limit = aws.Int32(query.Limit)
	}
	if query.ConsistentRead && query.Index == "" {
		input.ConsistentRead = aws.Bool(true)
	}
	if query.ExclusiveStartKey != nil {
		input.ExclusiveStartKey = keyAttributes(*query.ExclusiveStartKey)
	}

	result, err := s.api.Query(ctx, input)
	if err != nil {
		return store.Page{}, translate("query", err)
	}

	page := store.Page{Records: make([]store.Record, 0, len(result.Items))}
	for _, item := range result.Items {
		page.Records = append(page.Records, record(item))
	}
	if len(result.LastEvaluatedKey) > 0 {
		lastKey, err := keyFromAttributes(result.LastEvaluatedKey)
		if err != nil {
			return store.Page{}, err
		}
		page.LastEvaluatedKey = &lastKey
	}
	return page, nil
}

func (s *Store) BatchGet(ctx context.Context, keys []store.Key, attrs []string) ([]store.Record, error) {
	var names map[string]string
	var projectionExpression *string
	if len(attrs) > 0 {
		expr, err := expression.NewBuilder().WithProjection(projection(attrs)).Build()
		if err != nil {
			return nil, fmt.Errorf("dynamostore: build projection: %w", err)
		}
		names = expr.Names()
		projectionExpression = expr.Projection()
	}

	records := make([]store.Record, 0, len(keys))
	for start := 0; start < len(keys); start += store.MaxBatchKeys {
		end := start + store.MaxBatchKeys
		if end > len(keys) {
			end = len(keys)
		}
		requestKeys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, key := range keys[start:end] {
			requestKeys = append(requestKeys, keyAttributes(store.Key{PK: key.PK, SK: key.SK}))
		}

		result, err := s.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				s.table: {
					Keys:                     requestKeys,
					ProjectionExpression:     projectionExpression,
					ExpressionAttributeNames: names,
				},
			},
		})
		if err != nil {
			return nil, translate("batch get item", err)
		}
		if unprocessed, ok := result.UnprocessedKeys[s.table]; ok && len(unprocessed.Keys) > 0 {
			return nil, fmt.Errorf("%w: batch get item: %d keys unprocessed", store.ErrUnavailable, len(unprocessed.Keys))
		}
		for _, item := range result.Responses[s.table] {
			records = append(records, record(item))
		}
	}
	return records, nil
}

func (s *Store) buildPut(put store.Put) (*types.Put, error) {
	item, err := attributevalue.MarshalMap(put.Item)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: marshal item: %w", err)
	}
	output := &types.Put{
		TableName: aws.String(s.table),
		Item:      item,
	}
	if len(put.Conditions) == 0 {
		return output, nil
	}

	condition, err := conditionExpression(put.Conditions)
	if err != nil {
		return nil, err
	}
	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return nil, fmt.Errorf("dynamostore: build put condition: %w", err)
	}
	output.ConditionExpression = expr.Condition()
	output.ExpressionAttributeNames = expr.Names()
	output.ExpressionAttributeValues = expr.Values()
	return output, nil
}

func (s *Store) buildUpdate(update store.Update) (*types.Update, error) {
	var updateExpr expression.UpdateBuilder
	for _, assignment := range update.Set {
		updateExpr = updateExpr.Set(expression.Name(assignment.Attr), expression.Value(assignment.Value))
	}
	for _, increment := range update.Increment {
		updateExpr = updateExpr.Add(expression.Name(increment.Attr), expression.Value(increment.By))
	}

	builder := expression.NewBuilder().WithUpdate(updateExpr)
	if len(update.Conditions) > 0 {
		condition, err := conditionExpression(update.Conditions)
		if err != nil {
			return nil, err
		}
		builder = builder.WithCondition(condition)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("dynamostore: build update: %w", err)
	}

	return &types.Update{
		TableName:                 aws.String(s.table),
		Key:                       keyAttributes(store.Key{PK: update.Key.PK, SK: update.Key.SK}),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

func conditionExpression(conditions []store.Condition) (expression.ConditionBuilder, error) {
	built := make([]expression.ConditionBuilder, 0, len(conditions))
	for _, condition := range conditions {
		name := expression.Name(condition.Attr)
		switch condition.Kind {
		case store.ConditionEquals:
			built = append(built, name.Equal(expression.Value(condition.Value)))
		case store.ConditionAbsent:
			built = append(built, expression.Or(
				expression.AttributeNotExists(name),
				expression.AttributeType(name, expression.Null),
			))
		case store.ConditionExists:
			built = append(built, expression.AttributeExists(name))
		case store.ConditionBeginsWith:
			prefix, ok := condition.Value.(string)
			if !ok {
				return expression.ConditionBuilder{}, fmt.Errorf("dynamostore: begins_with on %s needs a string prefix", condition.Attr)
			}
			built = append(built, expression.BeginsWith(name, prefix))
		default:
			return expression.ConditionBuilder{}, fmt.Errorf("dynamostore: unsupported condition kind %d", condition.Kind)
		}
	}

	switch len(built) {
	case 0:
		return expression.ConditionBuilder{}, errors.New("dynamostore: no conditions")
	case 1:
		return built[0], nil
	default:
		return expression.And(built[0], built[1], built[2:]...), nil
	}
}

func projection(attrs []string) expression.ProjectionBuilder {
	names := make([]expression.NameBuilder, 0, len(attrs))
	for _, attr := range attrs {
		names = append(names, expression.Name(attr))
	}
	return expression.NamesList(names[0], names[1:]...)
}

func keyAttributes(key store.Key) map[string]types.AttributeValue {
	attrs := map[string]types.AttributeValue{
		store.AttrPK: &types.AttributeValueMemberS{Value: key.PK},
		store.AttrSK: &types.AttributeValueMemberS{Value: key.SK},
	}
	if key.GSI1PK != "" {
		attrs[store.AttrGSI1PK] = &types.AttributeValueMemberS{Value: key.GSI1PK}
	}
	return attrs
}

func keyFromAttributes(attrs map[string]types.AttributeValue) (store.Key, error) {
	key := store.Key{
		PK:     stringAttribute(attrs, store.AttrPK),
		SK:     stringAttribute(attrs, store.AttrSK),
		GSI1PK: stringAttribute(attrs, store.AttrGSI1PK),
	}
	if key.PK == "" || key.SK == "" {
		return store.Key{}, fmt.Errorf("dynamostore: last evaluated key lacks %s or %s", store.AttrPK, store.AttrSK)
	}
	return key, nil
}

func stringAttribute(attrs map[string]types.AttributeValue, name string) string {
	if value, ok := attrs[name].(*types.AttributeValueMemberS); ok {
		return value.Value
	}
	return ""
}

// translate maps client errors onto the store error taxonomy.
func translate(action string, err error) error {
	var conditional *types.ConditionalCheckFailedException
	if errors.As(err, &conditional) {
		return fmt.Errorf("%w: %s: %s", store.ErrConditionFailed, action, conditional.ErrorMessage())
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			code := aws.ToString(reason.Code)
			if code == reasonConditionalCheckFailed || code == reasonTransactionConflict {
				return fmt.Errorf("%w: %s: %s", store.ErrConditionFailed, action, canceled.ErrorMessage())
			}
		}
	}

	var conflict *types.TransactionConflictException
	if errors.As(err, &conflict) {
		return fmt.Errorf("%w: %s: %s", store.ErrConditionFailed, action, conflict.ErrorMessage())
	}

	return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, action, err)
}

type record map[string]types.AttributeValue

func (r record) Decode(out any) error {
	if err := attributevalue.UnmarshalMap(r, out); err != nil {
		return fmt.Errorf("dynamostore: unmarshal item: %w", err)
	}
	return nil
}
