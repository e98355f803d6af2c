package lambdaapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2020-01-01/extension/register", r.URL.Path)
		assert.Equal(t, "telemetry-extension", r.Header.Get("Lambda-Extension-Name"))
		assert.Equal(t, "accountId", r.Header.Get("Lambda-Extension-Accept-Feature"))

		b, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"events":["INVOKE","SHUTDOWN"]}`, string(b))

		w.Header().Set("Lambda-Extension-Identifier", "test-extension-id")
		w.Write([]byte(`{"functionName":"hello","functionVersion":"$LATEST","handler":"bootstrap","accountId":"123456789012"}`))
	})

	out, err := c.Register(context.Background(), &RegisterInput{
		ExtensionName: "telemetry-extension",
		AcceptFeature: FeatureAccountID,
		Events:        []EventType{EventTypeInvoke, EventTypeShutdown},
	})
	require.NoError(t, err)
	assert.Equal(t, &RegisterOutput{
		ExtensionID:     "test-extension-id",
		FunctionName:    "hello",
		FunctionVersion: "$LATEST",
		Handler:         "bootstrap",
		AccountID:       "123456789012",
	}, out)
}

func TestRegisterErrors(t *testing.T) {
	valid := &RegisterInput{ExtensionName: "ext", Events: []EventType{EventTypeInvoke}}

	cases := []struct {
		name       string
		in         *RegisterInput
		handler    http.HandlerFunc
		inputErr   bool
		statusCode int
	}{
		{name: "nil input", in: nil, inputErr: true},
		{name: "empty name", in: &RegisterInput{Events: []EventType{EventTypeInvoke}}, inputErr: true},
		{name: "no events", in: &RegisterInput{ExtensionName: "ext"}, inputErr: true},
		{name: "unknown event", in: &RegisterInput{ExtensionName: "ext", Events: []EventType{"RESTORE"}}, inputErr: true},
		{
			name: "api error",
			in:   valid,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"errorMessage":"too late","errorType":"Extension.InvalidState"}`))
			},
			statusCode: http.StatusForbidden,
		},
		{
			name: "missing identifier header",
			in:   valid,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"functionName":"hello"}`))
			},
		},
		{
			name: "invalid body",
			in:   valid,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Lambda-Extension-Identifier", "id")
				w.Write([]byte(`///`))
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := c.handler
			if h == nil {
				h = func(w http.ResponseWriter, r *http.Request) {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
			}
			client := newTestClient(t, h)

			out, err := client.Register(context.Background(), c.in)
			assert.Nil(t, out)
			require.Error(t, err)
			assert.Equal(t, c.inputErr, errors.Is(err, ErrInvalidInput))

			var apiErr *APIError
			if c.statusCode != 0 {
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, c.statusCode, apiErr.StatusCode)
				assert.Equal(t, "Extension.InvalidState", apiErr.ErrorType)
			} else {
				assert.False(t, errors.As(err, &apiErr))
			}
		})
	}
}

func TestNextEvent(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		expect *Event
	}{
		{
			name: "invoke",
			body: `{"eventType":"INVOKE","deadlineMs":1676051349217,"requestId":"abc-123","invokedFunctionArn":"arn:aws:lambda:us-east-1:123456789012:function:hello","tracing":{"type":"X-Amzn-Trace-Id","value":"Root=1-5759e988-bd862e3fe1be46a994272793"}}`,
			expect: &Event{
				EventID:            "test-event-id",
				EventType:          EventTypeInvoke,
				DeadlineMs:         1676051349217,
				RequestID:          "abc-123",
				InvokedFunctionArn: "arn:aws:lambda:us-east-1:123456789012:function:hello",
				Tracing: Tracing{
					Type:  "X-Amzn-Trace-Id",
					Value: "Root=1-5759e988-bd862e3fe1be46a994272793",
				},
			},
		},
		{
			name: "shutdown",
			body: `{"eventType":"SHUTDOWN","shutdownReason":"spindown","deadlineMs":1676051349217}`,
			expect: &Event{
				EventID:        "test-event-id",
				EventType:      EventTypeShutdown,
				DeadlineMs:     1676051349217,
				ShutdownReason: "spindown",
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/2020-01-01/extension/event/next", r.URL.Path)
				assert.Equal(t, "test-extension-id", r.Header.Get("Lambda-Extension-Identifier"))
				w.Header().Set("Lambda-Extension-Event-Identifier", "test-event-id")
				w.Write([]byte(c.body))
			})

			ev, err := client.NextEvent(context.Background(), "test-extension-id")
			require.NoError(t, err)
			assert.Equal(t, c.expect, ev)
			assert.Equal(t, time.UnixMilli(1676051349217), ev.Deadline())
		})
	}
}

func TestNextEventErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Lambda-Extension-Identifier") == "bad-body" {
			w.Write([]byte(`///`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"errorMessage": "unknown extension",
			"errorType":    "Extension.UnknownExtensionIdentifier",
		})
	})

	_, err := client.NextEvent(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = client.NextEvent(context.Background(), "unknown")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "Extension.UnknownExtensionIdentifier", apiErr.ErrorType)

	_, err = client.NextEvent(context.Background(), "bad-body")
	assert.Error(t, err)
	assert.False(t, errors.As(err, &apiErr))
}
