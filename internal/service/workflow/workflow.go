// Пакет workflow запускает внешний конвейер генерации превью
// для загруженных видео.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/google/uuid"
)

// Trigger запускает обработку загруженного видео. Возвращает
// идентификатор запущенного выполнения.
type Trigger interface {
	StartPreviewGeneration(ctx context.Context, storageKey string, itemID uuid.UUID) (string, error)
}

type executionInput struct {
	S3Key  string `json:"s3_key"`
	ItemID string `json:"item_id"`
}

// StepFunctionsTrigger запускает конвейер через AWS Step Functions
type StepFunctionsTrigger struct {
	client          *sfn.Client
	stateMachineARN string
}

func NewStepFunctionsTrigger(region, stateMachineARN, accessKeyID, secretAccessKey string) (*StepFunctionsTrigger, error) {
	if stateMachineARN == "" {
		return nil, fmt.Errorf("state machine ARN is required")
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		accessKeyID,
		secretAccessKey,
		"",
	))

	client := sfn.New(sfn.Options{
		Region:           region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
	})

	return &StepFunctionsTrigger{
		client:          client,
		stateMachineARN: stateMachineARN,
	}, nil
}

func (t *StepFunctionsTrigger) StartPreviewGeneration(ctx context.Context, storageKey string, itemID uuid.UUID) (string, error) {
	payload, err := json.Marshal(executionInput{
		S3Key:  storageKey,
		ItemID: itemID.String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal execution input: %w", err)
	}

	result, err := t.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(t.stateMachineARN),
		Input:           aws.String(string(payload)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start preview workflow: %w", err)
	}

	return aws.ToString(result.ExecutionArn), nil
}

// NopTrigger используется когда конвейер не настроен
type NopTrigger struct{}

func (NopTrigger) StartPreviewGeneration(ctx context.Context, storageKey string, itemID uuid.UUID) (string, error) {
	return "", nil
}
