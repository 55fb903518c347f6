package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

// tableSpec describes one history table's name and composite key.
type tableSpec struct {
	name string
	pk   string
	sk   string
}

// historyTables lists the tables this store owns: call records partitioned
// by day, daily rollups partitioned by agent.
func historyTables(cfg DynamoConfig) []tableSpec {
	return []tableSpec{
		{name: cfg.CallRecordsTable, pk: "DateKey", sk: "CallID"},
		{name: cfg.AgentDailyTable, pk: "AgentID", sk: "Date"},
	}
}

// CreateTablesIfNotExist provisions the history tables against a
// dynamodb-local endpoint. In AWS mode the tables are managed by
// infrastructure, not by the service.
func CreateTablesIfNotExist(ctx context.Context, client *dynamodb.Client, cfg DynamoConfig, logger zerolog.Logger) error {
	for _, table := range historyTables(cfg) {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(table.name),
		})
		if err == nil {
			logger.Debug().Str("table", table.name).Msg("history table already exists")
			continue
		}

		_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(table.name),
			KeySchema: []dbtypes.KeySchemaElement{
				{AttributeName: aws.String(table.pk), KeyType: dbtypes.KeyTypeHash},
				{AttributeName: aws.String(table.sk), KeyType: dbtypes.KeyTypeRange},
			},
			AttributeDefinitions: []dbtypes.AttributeDefinition{
				{AttributeName: aws.String(table.pk), AttributeType: dbtypes.ScalarAttributeTypeS},
				{AttributeName: aws.String(table.sk), AttributeType: dbtypes.ScalarAttributeTypeS},
			},
			BillingMode: dbtypes.BillingModePayPerRequest,
		})
		if err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
		logger.Info().Str("table", table.name).Msg("history table created")
	}

	return nil
}
