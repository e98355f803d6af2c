// Package function holds the example Lambda handler observed by the
// telemetry extension.
package function

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/sirupsen/logrus"
)

const greeting = "Hello from Lambda!"

// Response is the result returned to the invoker. API Gateway proxy
// integrations map it onto an HTTP response.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Handle logs the request id at info level and returns the greeting.
// The event payload is not inspected.
func Handle(ctx context.Context, event json.RawMessage) (Response, error) {
	logger := logrus.StandardLogger()
	logger.SetLevel(logrus.InfoLevel)

	var requestID string
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		requestID = lc.AwsRequestID
	}

	logger.WithField("aws_request_id", requestID).Infof("[%s] Hello Telemetry API!", requestID)

	body, err := json.Marshal(greeting)
	if err != nil {
		return Response{}, fmt.Errorf("Error encoding body: %w", err)
	}

	return Response{
		StatusCode: http.StatusOK,
		Body:       string(body),
	}, nil
}
