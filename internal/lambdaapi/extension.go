package lambdaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	registerPath  = "/2020-01-01/extension/register"
	eventNextPath = "/2020-01-01/extension/event/next"

	headerExtensionName          = "Lambda-Extension-Name"
	headerExtensionAcceptFeature = "Lambda-Extension-Accept-Feature"
	headerExtensionIdentifier    = "Lambda-Extension-Identifier"
	headerExtensionEventID       = "Lambda-Extension-Event-Identifier"
)

type EventType string

const (
	EventTypeInvoke   EventType = "INVOKE"
	EventTypeShutdown EventType = "SHUTDOWN"
)

func (et EventType) Valid() bool {
	return et == EventTypeInvoke || et == EventTypeShutdown
}

// FeatureAccountID asks Register to return the account id of the function.
const FeatureAccountID = "accountId"

type RegisterInput struct {
	// ExtensionName must match the file name of the extension in /opt/extensions.
	ExtensionName string

	// AcceptFeature is a comma separated list of optional features.
	AcceptFeature string

	Events []EventType
}

type RegisterOutput struct {
	// ExtensionID identifies the extension in every later call.
	ExtensionID string `json:"-"`

	FunctionName    string `json:"functionName"`
	FunctionVersion string `json:"functionVersion"`
	Handler         string `json:"handler"`

	// AccountID is only set when FeatureAccountID was accepted.
	AccountID string `json:"accountId,omitempty"`
}

// Register registers the extension for the given events. It must be called
// during the Init phase, before any call to NextEvent.
func (c *Client) Register(ctx context.Context, in *RegisterInput) (*RegisterOutput, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: RegisterInput is nil", ErrInvalidInput)
	}
	if in.ExtensionName == "" {
		return nil, fmt.Errorf("%w: ExtensionName is empty", ErrInvalidInput)
	}
	if len(in.Events) == 0 {
		return nil, fmt.Errorf("%w: Events is empty", ErrInvalidInput)
	}
	for _, et := range in.Events {
		if !et.Valid() {
			return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, et)
		}
	}

	body, err := json.Marshal(struct {
		Events []EventType `json:"events"`
	}{Events: in.Events})
	if err != nil {
		return nil, fmt.Errorf("Error encoding register body: %w", err)
	}

	hs := []header{{key: headerExtensionName, value: in.ExtensionName}}
	if in.AcceptFeature != "" {
		hs = append(hs, header{key: headerExtensionAcceptFeature, value: in.AcceptFeature})
	}

	res, err := c.call(ctx, http.MethodPost, registerPath, bytes.NewReader(body), hs...)
	if err != nil {
		return nil, err
	}
	if res.statusCode != http.StatusOK {
		return nil, newAPIError(res.statusCode, res.body)
	}

	out := &RegisterOutput{}
	if err := json.Unmarshal(res.body, out); err != nil {
		return nil, fmt.Errorf("Error decoding register response %q: %w", res.body, err)
	}
	out.ExtensionID = res.header.Get(headerExtensionIdentifier)
	if out.ExtensionID == "" {
		return nil, fmt.Errorf("register response has no %s header", headerExtensionIdentifier)
	}

	return out, nil
}

type Tracing struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Event is one event delivered by NextEvent.
type Event struct {
	// EventID is the value of the Lambda-Extension-Event-Identifier header.
	EventID string `json:"-"`

	EventType EventType `json:"eventType"`

	// DeadlineMs is counted in milliseconds since the Unix epoch.
	DeadlineMs int64 `json:"deadlineMs"`

	// INVOKE only.
	RequestID          string  `json:"requestId,omitempty"`
	InvokedFunctionArn string  `json:"invokedFunctionArn,omitempty"`
	Tracing            Tracing `json:"tracing"`

	// SHUTDOWN only. One of spindown, timeout or failure.
	ShutdownReason string `json:"shutdownReason,omitempty"`
}

func (e *Event) Deadline() time.Time {
	return time.UnixMilli(e.DeadlineMs)
}

// NextEvent blocks until the runtime delivers the next event or ctx is done.
func (c *Client) NextEvent(ctx context.Context, extensionID string) (*Event, error) {
	if extensionID == "" {
		return nil, fmt.Errorf("%w: extension id is empty", ErrInvalidInput)
	}

	res, err := c.call(ctx, http.MethodGet, eventNextPath, nil,
		header{key: headerExtensionIdentifier, value: extensionID})
	if err != nil {
		return nil, err
	}
	if res.statusCode != http.StatusOK {
		return nil, newAPIError(res.statusCode, res.body)
	}

	ev := &Event{}
	if err := json.Unmarshal(res.body, ev); err != nil {
		return nil, fmt.Errorf("Error decoding event %q: %w", res.body, err)
	}
	ev.EventID = res.header.Get(headerExtensionEventID)

	return ev, nil
}
