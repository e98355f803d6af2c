package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	"github.com/pulumi/pulumi-command/sdk/go/command/local"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const (
	extensionName = "telemetry-extension"
	lambdaRuntime = "provided.al2023"

	functionAsset  = "asset/function/bootstrap"
	layerAssetDir  = "asset/layer"
	extensionAsset = layerAssetDir + "/extensions/" + extensionName
)

type LambdaHandler struct {
	role     *iam.Role
	layer    *lambda.LayerVersion
	function *lambda.Function
}

type LambdaHandlerArgs struct {
	api      *Api
	settings *Settings
}

func NewLambdaHandler(ctx *pulumi.Context, args LambdaHandlerArgs) (*LambdaHandler, error) {
	lh := &LambdaHandler{}
	goarch := args.settings.goarch()

	_, err := local.Run(ctx, &local.RunArgs{
		Dir: pulumi.StringRef("."),
		Command: strings.Join([]string{
			"rm -rf asset && mkdir -p asset/function " + layerAssetDir + "/extensions",
			fmt.Sprintf("GOOS=linux GOARCH=%s CGO_ENABLED=0 go build -mod=readonly -tags lambda.norpc -o ./%s ./cmd/function", goarch, functionAsset),
			fmt.Sprintf("GOOS=linux GOARCH=%s CGO_ENABLED=0 go build -mod=readonly -o ./%s ./cmd/extension", goarch, extensionAsset),
			fmt.Sprintf("chmod +x ./%s ./%s", functionAsset, extensionAsset),
		}, " && "),
		AssetPaths: []string{functionAsset, extensionAsset},
	})
	if err != nil {
		return nil, fmt.Errorf("Error running local command: %w", err)
	}

	functionHash, err := hashFile(functionAsset)
	if err != nil {
		return nil, fmt.Errorf("Error hashing function asset: %w", err)
	}
	layerHash, err := hashDirectory(layerAssetDir)
	if err != nil {
		return nil, fmt.Errorf("Error hashing layer assets: %w", err)
	}

	lh.role, err = newExecutionRole(ctx, "lambda-execution-role")
	if err != nil {
		return nil, err
	}

	// Lambda starts every executable under /opt/extensions as an external extension.
	lh.layer, err = lambda.NewLayerVersion(ctx, "telemetry-extension-layer", &lambda.LayerVersionArgs{
		LayerName: pulumi.String(extensionName),
		Code: pulumi.NewAssetArchive(map[string]interface{}{
			"extensions/" + extensionName: pulumi.NewFileAsset("./" + extensionAsset),
		}),
		CompatibleArchitectures: pulumi.ToStringArray([]string{args.settings.architecture}),
		CompatibleRuntimes:      pulumi.ToStringArray([]string{lambdaRuntime}),
		SourceCodeHash:          pulumi.String(layerHash),
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating extension layer: %w", err)
	}

	logGroup, err := newLogGroup(ctx, "handler-log-group", args.settings)
	if err != nil {
		return nil, err
	}

	code := pulumi.NewAssetArchive(map[string]interface{}{"bootstrap": pulumi.NewFileAsset("./" + functionAsset)})
	lh.function, err = lambda.NewFunction(ctx, "handler", &lambda.FunctionArgs{
		Architectures:  pulumi.ToStringArray([]string{args.settings.architecture}),
		Role:           lh.role.Arn,
		Code:           code,
		Handler:        pulumi.String("bootstrap"),
		Runtime:        pulumi.String(lambdaRuntime),
		Layers:         pulumi.StringArray{lh.layer.Arn},
		SourceCodeHash: pulumi.String(functionHash),
		Environment:    extensionEnvironment(args.settings),
		LoggingConfig: &lambda.FunctionLoggingConfigArgs{
			LogFormat: pulumi.String("Text"),
			LogGroup:  logGroup.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating lambda function: %w", err)
	}

	if err := args.api.registerLambda(ctx, "lambda", "GET /", lh.function); err != nil {
		return nil, err
	}

	ctx.Export("functionName", lh.function.Name)
	ctx.Export("extensionLayerArn", lh.layer.Arn)

	return lh, nil
}

func newExecutionRole(ctx *pulumi.Context, name string) (*iam.Role, error) {
	assumeRolePolicy, err := iam.GetPolicyDocument(ctx, &iam.GetPolicyDocumentArgs{
		Statements: []iam.GetPolicyDocumentStatement{
			{
				Actions: []string{"sts:AssumeRole"},
				Principals: []iam.GetPolicyDocumentStatementPrincipal{
					{Type: "Service", Identifiers: []string{"lambda.amazonaws.com"}},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating AssumeRolePolicy: %w", err)
	}
	role, err := iam.NewRole(ctx, name, &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(assumeRolePolicy.Json),
		ManagedPolicyArns: pulumi.ToStringArray([]string{
			string(iam.ManagedPolicyAWSLambdaBasicExecutionRole),
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating execution role: %w", err)
	}
	return role, nil
}

func newLogGroup(ctx *pulumi.Context, name string, settings *Settings) (*cloudwatch.LogGroup, error) {
	logGroup, err := cloudwatch.NewLogGroup(ctx, name, &cloudwatch.LogGroupArgs{
		RetentionInDays: pulumi.IntPtr(settings.logRetentionDays),
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating log group: %w", err)
	}
	return logGroup, nil
}

// extensionEnvironment configures the telemetry extension running next to
// the function.
func extensionEnvironment(settings *Settings) *lambda.FunctionEnvironmentArgs {
	return &lambda.FunctionEnvironmentArgs{
		Variables: pulumi.StringMap{
			"TELEMETRY_TYPES":             pulumi.String("platform,function"),
			"TELEMETRY_BUFFER_TIMEOUT_MS": pulumi.String(strconv.Itoa(settings.telemetryBufferTimeoutMs)),
			"LOG_LEVEL":                   pulumi.String("info"),
		},
	}
}
