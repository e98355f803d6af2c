// Package extension runs the telemetry extension: it registers with the
// Extensions API, subscribes a local listener to the Telemetry API and
// follows the function lifecycle until SHUTDOWN.
package extension

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lambda-telemetry-example/internal/config"
	"lambda-telemetry-example/internal/lambdaapi"
	"lambda-telemetry-example/internal/telemetry"
)

// API is the subset of lambdaapi.Client used by the agent.
type API interface {
	Register(ctx context.Context, in *lambdaapi.RegisterInput) (*lambdaapi.RegisterOutput, error)
	NextEvent(ctx context.Context, extensionID string) (*lambdaapi.Event, error)
	Subscribe(ctx context.Context, in *lambdaapi.SubscribeInput) error
}

type Agent struct {
	name     string
	api      API
	listener *telemetry.Listener
	cfg      config.TelemetryConfig
	timeout  time.Duration
	log      *logrus.Entry

	extensionID string
}

type AgentArgs struct {
	// Name must match the executable name under /opt/extensions.
	Name string

	API             API
	Listener        *telemetry.Listener
	Telemetry       config.TelemetryConfig
	ShutdownTimeout time.Duration
	Log             *logrus.Entry
}

func NewAgent(args AgentArgs) *Agent {
	return &Agent{
		name:     args.Name,
		api:      args.API,
		listener: args.Listener,
		cfg:      args.Telemetry,
		timeout:  args.ShutdownTimeout,
		log:      args.Log,
	}
}

// Run blocks until a SHUTDOWN event arrives, ctx is cancelled, or a call
// to the Lambda APIs fails.
func (a *Agent) Run(ctx context.Context) error {
	reg, err := a.api.Register(ctx, &lambdaapi.RegisterInput{
		ExtensionName: a.name,
		Events:        []lambdaapi.EventType{lambdaapi.EventTypeInvoke, lambdaapi.EventTypeShutdown},
	})
	if err != nil {
		return fmt.Errorf("Error registering extension: %w", err)
	}
	a.extensionID = reg.ExtensionID
	a.log.WithFields(logrus.Fields{
		"function_name":    reg.FunctionName,
		"function_version": reg.FunctionVersion,
	}).Info("Registered extension")

	uri, err := a.listener.Start()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.listener.Serve)
	g.Go(func() error {
		defer a.shutdownListener()

		err := a.api.Subscribe(gctx, &lambdaapi.SubscribeInput{
			ExtensionID:     a.extensionID,
			Protocol:        lambdaapi.DestinationProtocolHTTP,
			URI:             uri,
			Types:           a.cfg.Types,
			BufferMaxItems:  a.cfg.BufferMaxItems,
			BufferMaxBytes:  a.cfg.BufferMaxBytes,
			BufferTimeoutMs: a.cfg.BufferTimeoutMs,
		})
		if err != nil {
			return fmt.Errorf("Error subscribing to telemetry: %w", err)
		}
		a.log.WithField("types", a.cfg.Types).Info("Subscribed to telemetry")

		return a.processEvents(gctx)
	})

	return g.Wait()
}

func (a *Agent) shutdownListener() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.listener.Shutdown(ctx); err != nil {
		a.log.WithError(err).Error("Failed to shutdown listener gracefully")
	}
}

func (a *Agent) processEvents(ctx context.Context) error {
	for {
		a.log.Debug("Waiting for next event")
		ev, err := a.api.NextEvent(ctx, a.extensionID)
		if err != nil {
			if ctx.Err() != nil {
				a.log.Info("Context done, exiting")
				return nil
			}
			return fmt.Errorf("Error waiting for next event: %w", err)
		}

		switch ev.EventType {
		case lambdaapi.EventTypeInvoke:
			a.log.WithFields(logrus.Fields{
				"aws_request_id": ev.RequestID,
				"deadline":       ev.Deadline().UTC().Format(time.RFC3339Nano),
			}).Info("Received invoke event")
		case lambdaapi.EventTypeShutdown:
			a.log.WithField("reason", ev.ShutdownReason).Info("Received shutdown event")
			return nil
		default:
			return fmt.Errorf("Cannot handle event type %q", ev.EventType)
		}
	}
}
