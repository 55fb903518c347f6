package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/skandyx/evscallpro-live/internal/types"
)

// DynamoStore persists call records and agent daily rollups in DynamoDB.
// Records are keyed by day so supervisors can pull one day's history in a
// single partition query.
type DynamoStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoStore connects to DynamoDB per cfg. Local mode targets a
// dynamodb-local endpoint and creates the history tables on first run.
func NewDynamoStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// Build the client directly instead of LoadDefaultConfig: the default
		// chain probes the EC2 IMDS endpoint, which hangs when static local
		// credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	s := &DynamoStore{
		client: client,
		config: cfg,
		logger: logger.With().Str("component", "history_store").Logger(),
	}

	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("call-history store ready")

	return s, nil
}

// NewStore builds the history store the configuration asks for. DYNAMO_MODE
// none yields a NoopStore so the service runs without any persistence.
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("call-history persistence disabled (DYNAMO_MODE=none)")
		return NewNoopStore(), nil
	}
}

func (s *DynamoStore) SaveCallRecord(record types.CallRecord) error {
	if err := s.putItem(s.config.CallRecordsTable, record); err != nil {
		return fmt.Errorf("failed to save call record %s: %w", record.CallID, err)
	}
	return nil
}

func (s *DynamoStore) SaveAgentDailyStats(stats types.AgentDailyStats) error {
	if err := s.putItem(s.config.AgentDailyTable, stats); err != nil {
		return fmt.Errorf("failed to save daily stats for %s: %w", stats.AgentID, err)
	}
	return nil
}

func (s *DynamoStore) putItem(table string, v any) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	return err
}

// GetCallRecords returns every call that ended on the given day.
func (s *DynamoStore) GetCallRecords(dateKey string) ([]types.CallRecord, error) {
	var records []types.CallRecord
	err := s.queryPartition(s.config.CallRecordsTable, "DateKey", dateKey, nil, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query call records for %s: %w", dateKey, err)
	}
	return records, nil
}

// GetAgentDailyStats returns all persisted daily rollups for one agent.
func (s *DynamoStore) GetAgentDailyStats(agentID string) ([]types.AgentDailyStats, error) {
	var stats []types.AgentDailyStats
	err := s.queryPartition(s.config.AgentDailyTable, "AgentID", agentID, nil, &stats)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats for %s: %w", agentID, err)
	}
	return stats, nil
}

// GetAgentCallsByDate returns one agent's calls for one day. Scans the day
// partition with a filter; a GSI on AgentID would avoid the filter if this
// ever becomes hot.
func (s *DynamoStore) GetAgentCallsByDate(agentID, date string) ([]types.CallRecord, error) {
	filter := expression.Name("AgentID").Equal(expression.Value(agentID))
	var records []types.CallRecord
	err := s.queryPartition(s.config.CallRecordsTable, "DateKey", date, &filter, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls for agent %s: %w", agentID, err)
	}
	return records, nil
}

// queryPartition queries one partition key value, optionally filtered, and
// unmarshals the items into out (a pointer to a slice).
func (s *DynamoStore) queryPartition(table, pk, value string, filter *expression.ConditionBuilder, out any) error {
	builder := expression.NewBuilder().
		WithKeyCondition(expression.Key(pk).Equal(expression.Value(value)))
	if filter != nil {
		builder = builder.WithFilter(*filter)
	}
	expr, err := builder.Build()
	if err != nil {
		return err
	}

	result, err := s.client.Query(context.Background(), &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return err
	}

	return attributevalue.UnmarshalListOfMaps(result.Items, out)
}

// TruncateAll empties both history tables. Exposed on the internal API for
// resetting local and load-test environments; never called in normal
// operation.
func (s *DynamoStore) TruncateAll() error {
	for _, table := range historyTables(s.config) {
		if err := s.truncateTable(table); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table.name, err)
		}
	}
	return nil
}

func (s *DynamoStore) truncateTable(table tableSpec) error {
	var lastKey map[string]dbtypes.AttributeValue
	deleted := 0

	for {
		input := &dynamodb.ScanInput{
			TableName:            aws.String(table.name),
			ProjectionExpression: aws.String("#pk, #sk"),
			ExpressionAttributeNames: map[string]string{
				"#pk": table.pk,
				"#sk": table.sk,
			},
			Limit:             aws.Int32(500),
			ExclusiveStartKey: lastKey,
		}

		result, err := s.client.Scan(context.Background(), input)
		if err != nil {
			return err
		}

		// BatchWriteItem caps at 25 requests
		for i := 0; i < len(result.Items); i += 25 {
			end := i + 25
			if end > len(result.Items) {
				end = len(result.Items)
			}

			requests := make([]dbtypes.WriteRequest, 0, end-i)
			for _, item := range result.Items[i:end] {
				requests = append(requests, dbtypes.WriteRequest{
					DeleteRequest: &dbtypes.DeleteRequest{
						Key: map[string]dbtypes.AttributeValue{
							table.pk: item[table.pk],
							table.sk: item[table.sk],
						},
					},
				})
			}

			_, err := s.client.BatchWriteItem(context.Background(), &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]dbtypes.WriteRequest{
					table.name: requests,
				},
			})
			if err != nil {
				return err
			}
			deleted += len(requests)
		}

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}

	s.logger.Info().Str("table", table.name).Int("items", deleted).Msg("history table emptied")
	return nil
}
