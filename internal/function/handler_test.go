package function

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withRequestID(id string) context.Context {
	return lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{
		AwsRequestID: id,
	})
}

func TestHandle(t *testing.T) {
	cases := []struct {
		name      string
		requestID string
		event     json.RawMessage
	}{
		{name: "example request", requestID: "abc-123", event: json.RawMessage(`{}`)},
		{name: "null event", requestID: "c6af9ac6-7b61-11e6-9a41-93e812345678", event: json.RawMessage(`null`)},
		{name: "nil event", requestID: "req-1", event: nil},
		{name: "arbitrary event", requestID: "req-2", event: json.RawMessage(`{"type":"ping","items":[1,2,3]}`)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hook := test.NewGlobal()
			defer hook.Reset()

			res, err := Handle(withRequestID(c.requestID), c.event)
			require.NoError(t, err)

			assert.Equal(t, 200, res.StatusCode)
			var body string
			require.NoError(t, json.Unmarshal([]byte(res.Body), &body))
			assert.Equal(t, "Hello from Lambda!", body)

			entries := hook.AllEntries()
			require.Len(t, entries, 1)
			assert.Equal(t, logrus.InfoLevel, entries[0].Level)
			assert.Contains(t, entries[0].Message, c.requestID)
			assert.Equal(t, c.requestID, entries[0].Data["aws_request_id"])
		})
	}
}

func TestHandleResponseShape(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	res, err := Handle(withRequestID("abc-123"), nil)
	require.NoError(t, err)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"statusCode":200,"body":"\"Hello from Lambda!\""}`, string(b))
	assert.Equal(t, "[abc-123] Hello Telemetry API!", hook.LastEntry().Message)
}

func TestHandleResetsLevel(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	logrus.SetLevel(logrus.ErrorLevel)
	defer logrus.SetLevel(logrus.InfoLevel)

	_, err := Handle(withRequestID("abc-123"), nil)
	require.NoError(t, err)

	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	require.Len(t, hook.AllEntries(), 1)
}

func TestHandleWithoutLambdaContext(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	res, err := Handle(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 200, res.StatusCode)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "[] Hello Telemetry API!", hook.LastEntry().Message)
}
