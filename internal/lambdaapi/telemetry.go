package lambdaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	subscribePath = "/2022-07-01/telemetry"

	telemetrySchemaVersion = "2022-12-13"
)

type DestinationProtocol string

const (
	DestinationProtocolHTTP DestinationProtocol = "HTTP"
	DestinationProtocolTCP  DestinationProtocol = "TCP"
)

func (dp DestinationProtocol) Valid() bool {
	return dp == DestinationProtocolHTTP || dp == DestinationProtocolTCP
}

type TelemetryType string

const (
	TelemetryTypePlatform  TelemetryType = "platform"
	TelemetryTypeFunction  TelemetryType = "function"
	TelemetryTypeExtension TelemetryType = "extension"
)

func (tt TelemetryType) Valid() bool {
	return tt == TelemetryTypePlatform || tt == TelemetryTypeFunction || tt == TelemetryTypeExtension
}

// Buffering limits accepted by the Telemetry API.
const (
	BufferMaxItemsMin     uint64 = 25
	BufferMaxItemsMax     uint64 = 30000
	BufferMaxItemsDefault uint64 = 10000

	BufferMaxBytesMin     uint64 = 256 * 1024
	BufferMaxBytesMax     uint64 = 1024 * 1024
	BufferMaxBytesDefault uint64 = 256 * 1024

	BufferTimeoutMsMin     uint64 = 25
	BufferTimeoutMsMax     uint64 = 30000
	BufferTimeoutMsDefault uint64 = 1000
)

type SubscribeInput struct {
	// ExtensionID is the identifier returned by Register.
	ExtensionID string

	Protocol DestinationProtocol
	URI      string
	Types    []TelemetryType

	// Nil buffering fields use the API defaults.
	BufferMaxItems  *uint64
	BufferMaxBytes  *uint64
	BufferTimeoutMs *uint64
}

type subscribeBody struct {
	SchemaVersion string                   `json:"schemaVersion"`
	Destination   subscribeBodyDestination `json:"destination"`
	Types         []TelemetryType          `json:"types"`
	Buffering     subscribeBodyBuffering   `json:"buffering"`
}

type subscribeBodyDestination struct {
	Protocol DestinationProtocol `json:"protocol"`
	URI      string              `json:"URI"`
}

type subscribeBodyBuffering struct {
	MaxItems  uint64 `json:"maxItems"`
	MaxBytes  uint64 `json:"maxBytes"`
	TimeoutMs uint64 `json:"timeoutMs"`
}

func bufferValue(name string, v *uint64, def, lo, hi uint64) (uint64, error) {
	if v == nil {
		return def, nil
	}
	if *v < lo || *v > hi {
		return 0, fmt.Errorf("%w: %s must be between %d and %d, got %d", ErrInvalidInput, name, lo, hi, *v)
	}
	return *v, nil
}

func (in *SubscribeInput) body() (*subscribeBody, error) {
	if in.ExtensionID == "" {
		return nil, fmt.Errorf("%w: ExtensionID is empty", ErrInvalidInput)
	}
	if !in.Protocol.Valid() {
		return nil, fmt.Errorf("%w: unknown destination protocol %q", ErrInvalidInput, in.Protocol)
	}
	if in.URI == "" {
		return nil, fmt.Errorf("%w: URI is empty", ErrInvalidInput)
	}
	if len(in.Types) == 0 {
		return nil, fmt.Errorf("%w: Types is empty", ErrInvalidInput)
	}
	for _, tt := range in.Types {
		if !tt.Valid() {
			return nil, fmt.Errorf("%w: unknown telemetry type %q", ErrInvalidInput, tt)
		}
	}

	sb := &subscribeBody{
		SchemaVersion: telemetrySchemaVersion,
		Destination: subscribeBodyDestination{
			Protocol: in.Protocol,
			URI:      in.URI,
		},
		Types: in.Types,
	}

	var err error
	if sb.Buffering.MaxItems, err = bufferValue("BufferMaxItems", in.BufferMaxItems,
		BufferMaxItemsDefault, BufferMaxItemsMin, BufferMaxItemsMax); err != nil {
		return nil, err
	}
	if sb.Buffering.MaxBytes, err = bufferValue("BufferMaxBytes", in.BufferMaxBytes,
		BufferMaxBytesDefault, BufferMaxBytesMin, BufferMaxBytesMax); err != nil {
		return nil, err
	}
	if sb.Buffering.TimeoutMs, err = bufferValue("BufferTimeoutMs", in.BufferTimeoutMs,
		BufferTimeoutMsDefault, BufferTimeoutMsMin, BufferTimeoutMsMax); err != nil {
		return nil, err
	}

	return sb, nil
}

// Subscribe asks Lambda to send the given telemetry streams to in.URI.
func (c *Client) Subscribe(ctx context.Context, in *SubscribeInput) error {
	if in == nil {
		return fmt.Errorf("%w: SubscribeInput is nil", ErrInvalidInput)
	}

	sb, err := in.body()
	if err != nil {
		return err
	}
	body, err := json.Marshal(sb)
	if err != nil {
		return fmt.Errorf("Error encoding subscribe body: %w", err)
	}

	res, err := c.call(ctx, http.MethodPut, subscribePath, bytes.NewReader(body),
		header{key: headerExtensionIdentifier, value: in.ExtensionID})
	if err != nil {
		return err
	}
	if res.statusCode != http.StatusOK {
		return newAPIError(res.statusCode, res.body)
	}

	return nil
}
