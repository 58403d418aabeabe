package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/imrishuroy/fieldlink/internal/config"
)

var (
	_ DynamoDBAPI   = (*dynamodb.Client)(nil)
	_ SQSAPI        = (*sqs.Client)(nil)
	_ CloudWatchAPI = (*cloudwatch.Client)(nil)
)

// AWSClients holds the service clients behind the narrow interfaces the
// link, remote and metrics components depend on.
type AWSClients struct {
	DynamoDB   DynamoDBAPI
	SQS        SQSAPI
	CloudWatch CloudWatchAPI
}

// NewClients builds every service client from one loaded config.
func NewClients(cfg sdkaws.Config) *AWSClients {
	return &AWSClients{
		DynamoDB:   dynamodb.NewFromConfig(cfg),
		SQS:        sqs.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
	}
}

// NewAWSClients loads the AWS config for cfg and builds the clients.
func NewAWSClients(ctx context.Context, appCfg *appconfig.Config) (*AWSClients, error) {
	cfg, err := LoadAWSConfig(ctx, appCfg)
	if err != nil {
		return nil, err
	}
	return NewClients(cfg), nil
}
