package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		settings, err := loadSettings(ctx)
		if err != nil {
			return err
		}

		api, err := NewApi(ctx)
		if err != nil {
			return err
		}

		handler, err := NewLambdaHandler(ctx, LambdaHandlerArgs{
			api:      api,
			settings: settings,
		})
		if err != nil {
			return err
		}

		if !settings.containerImage {
			return nil
		}

		build, err := NewEcrDockerBuild(ctx, settings)
		if err != nil {
			return err
		}

		_, err = NewImageHandler(ctx, ImageHandlerArgs{
			image:    build.image,
			role:     handler.role,
			api:      api,
			settings: settings,
		})
		if err != nil {
			return err
		}

		return nil
	})
}
