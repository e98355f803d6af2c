package main

import (
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

// Settings are read from the stack configuration, e.g.
//
//	pulumi config set architecture x86_64
//	pulumi config set containerImage true
type Settings struct {
	architecture             string
	logRetentionDays         int
	containerImage           bool
	telemetryBufferTimeoutMs int
}

func loadSettings(ctx *pulumi.Context) (*Settings, error) {
	cfg := config.New(ctx, "")
	s := &Settings{
		architecture:             "arm64",
		logRetentionDays:         1,
		containerImage:           cfg.GetBool("containerImage"),
		telemetryBufferTimeoutMs: 100,
	}

	if v := cfg.Get("architecture"); v != "" {
		s.architecture = v
	}
	if v, err := cfg.TryInt("logRetentionDays"); err == nil {
		s.logRetentionDays = v
	}
	if v, err := cfg.TryInt("telemetryBufferTimeoutMs"); err == nil {
		s.telemetryBufferTimeoutMs = v
	}

	if s.architecture != "arm64" && s.architecture != "x86_64" {
		return nil, fmt.Errorf("architecture must be arm64 or x86_64, got %q", s.architecture)
	}
	if s.telemetryBufferTimeoutMs < 25 || s.telemetryBufferTimeoutMs > 30000 {
		return nil, fmt.Errorf("telemetryBufferTimeoutMs must be between 25 and 30000, got %d", s.telemetryBufferTimeoutMs)
	}

	return s, nil
}

// goarch maps the Lambda architecture name to GOARCH.
func (s *Settings) goarch() string {
	if s.architecture == "x86_64" {
		return "amd64"
	}
	return "arm64"
}

func (s *Settings) dockerPlatform() string {
	return "linux/" + s.goarch()
}
