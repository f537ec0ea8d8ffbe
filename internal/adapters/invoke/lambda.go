package invoke

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/fieldrank/fieldrank/pkg/logger"
)

// lambdaAPI is the slice of the Lambda client the invoker uses.
type lambdaAPI interface {
	Invoke(ctx context.Context, in *lambda.InvokeInput, opts ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaInvoker calls deployed Lambda functions.
type LambdaInvoker struct {
	client lambdaAPI
	log    logger.Logger
}

var _ Invoker = (*LambdaInvoker)(nil)

// NewLambdaInvoker builds an invoker over a real Lambda client.
func NewLambdaInvoker(ctx context.Context, region string, log logger.Logger) (*LambdaInvoker, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newLambdaInvoker(lambda.NewFromConfig(awsCfg), log), nil
}

func newLambdaInvoker(client lambdaAPI, log logger.Logger) *LambdaInvoker {
	return &LambdaInvoker{client: client, log: log.Named("invoke.lambda")}
}

// Invoke calls the function synchronously.
func (l *LambdaInvoker) Invoke(ctx context.Context, function string, payload []byte) ([]byte, error) {
	out, err := l.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(function),
		Payload:        payload,
		InvocationType: types.InvocationTypeRequestResponse,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", function, err)
	}
	if out.FunctionError != nil {
		return nil, &FunctionError{Function: function, Message: string(out.Payload)}
	}
	return out.Payload, nil
}

// InvokeAsync fires the function without waiting.
func (l *LambdaInvoker) InvokeAsync(ctx context.Context, function string, payload []byte) error {
	_, err := l.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(function),
		Payload:        payload,
		InvocationType: types.InvocationTypeEvent,
	})
	if err != nil {
		return fmt.Errorf("invoke async %s: %w", function, err)
	}
	l.log.Debug(ctx, "dispatched async invocation", logger.String("function", function))
	return nil
}
