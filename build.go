package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ecr"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	"github.com/pulumi/pulumi-docker/sdk/v4/go/docker"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

type EcrImage struct {
	image *docker.Image
}

// NewEcrDockerBuild builds the container image variant of the function,
// with the telemetry extension baked into /opt/extensions.
func NewEcrDockerBuild(ctx *pulumi.Context, settings *Settings) (*EcrImage, error) {
	ecrImage := &EcrImage{}
	repo, err := ecr.NewRepository(ctx, "registry", &ecr.RepositoryArgs{
		ForceDelete: pulumi.BoolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating repo: %w", err)
	}
	authToken := ecr.GetAuthorizationTokenOutput(ctx, ecr.GetAuthorizationTokenOutputArgs{
		RegistryId: repo.RegistryId,
	})
	ecrImage.image, err = docker.NewImage(ctx, "function-image", &docker.ImageArgs{
		Registry: docker.RegistryArgs{
			Server:   repo.RepositoryUrl,
			Username: authToken.UserName(),
			Password: pulumi.ToSecret(authToken.ApplyT(func(authToken ecr.GetAuthorizationTokenResult) (*string, error) {
				return &authToken.Password, nil
			})).(pulumi.StringPtrOutput),
		},
		Build: docker.DockerBuildArgs{
			Platform:   pulumi.String(settings.dockerPlatform()),
			Context:    pulumi.String("."),
			Dockerfile: pulumi.String("Dockerfile"),
			Args: pulumi.StringMap{
				"GOARCH":         pulumi.String(settings.goarch()),
				"EXTENSION_NAME": pulumi.String(extensionName),
			},
		},
		ImageName: repo.RepositoryUrl.ApplyT(func(url string) string {
			return fmt.Sprintf("%s:latest", url)
		}).(pulumi.StringOutput),
	})
	if err != nil {
		return nil, fmt.Errorf("Error building image: %w", err)
	}

	return ecrImage, nil
}

type ImageHandlerArgs struct {
	image    *docker.Image
	role     *iam.Role
	api      *Api
	settings *Settings
}

func NewImageHandler(ctx *pulumi.Context, args ImageHandlerArgs) (*lambda.Function, error) {
	logGroup, err := newLogGroup(ctx, "image-handler-log-group", args.settings)
	if err != nil {
		return nil, err
	}

	handler, err := lambda.NewFunction(ctx, "image-handler", &lambda.FunctionArgs{
		Architectures: pulumi.ToStringArray([]string{args.settings.architecture}),
		Role:          args.role.Arn,
		PackageType:   pulumi.String("Image"),
		ImageUri:      args.image.RepoDigest,
		Environment:   extensionEnvironment(args.settings),
		LoggingConfig: &lambda.FunctionLoggingConfigArgs{
			LogFormat: pulumi.String("Text"),
			LogGroup:  logGroup.Name,
		},
	}, pulumi.DependsOn([]pulumi.Resource{args.image}))
	if err != nil {
		return nil, fmt.Errorf("Error creating image lambda function: %w", err)
	}

	if err := args.api.registerLambda(ctx, "image-lambda", "GET /image", handler); err != nil {
		return nil, err
	}

	ctx.Export("imageFunctionName", handler.Name)

	return handler, nil
}
