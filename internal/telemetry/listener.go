// Package telemetry receives the batches Lambda pushes to a Telemetry API
// subscriber.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is one telemetry record. Record is kept raw since its shape depends
// on Type (platform.start, function, extension, ...).
type Event struct {
	Time   time.Time       `json:"time"`
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
}

// Sink consumes a decoded batch. A returned error makes the listener answer
// with a 5xx so Lambda retries the batch.
type Sink interface {
	Consume(ctx context.Context, events []Event) error
}

type Listener struct {
	host string
	port int
	sink Sink
	log  *logrus.Entry

	ln         net.Listener
	httpServer *http.Server
}

func NewListener(host string, port int, sink Sink, log *logrus.Entry) *Listener {
	return &Listener{
		host: host,
		port: port,
		sink: sink,
		log:  log,
	}
}

// Start binds the listener and returns the URI to subscribe with. Call
// Serve afterwards to accept batches.
func (l *Listener) Start() (string, error) {
	addr := net.JoinHostPort(l.host, strconv.Itoa(l.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("Error listening on %s: %w", addr, err)
	}
	l.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleBatch)
	l.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Report the bound port, which differs from l.port when it is 0.
	port := ln.Addr().(*net.TCPAddr).Port
	uri := fmt.Sprintf("http://%s/", net.JoinHostPort(l.host, strconv.Itoa(port)))
	l.log.Infof("Listening on %s", uri)

	return uri, nil
}

// Serve accepts batches until Shutdown. It returns nil after a clean shutdown.
func (l *Listener) Serve() error {
	if l.httpServer == nil {
		return errors.New("listener is not started")
	}
	err := l.httpServer.Serve(l.ln)
	if errors.Is(err, http.ErrServerClosed) {
		l.log.Info("Http server closed")
		return nil
	}
	return err
}

// Shutdown waits for in-flight batches until ctx is done.
func (l *Listener) Shutdown(ctx context.Context) error {
	if l.httpServer == nil {
		return nil
	}
	if err := l.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("Error shutting down http server: %w", err)
	}
	return nil
}

func (l *Listener) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		l.log.WithError(err).Error("Failed to read batch")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		l.log.WithError(err).Warnf("Dropping malformed batch of %d bytes", len(body))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := l.sink.Consume(r.Context(), events); err != nil {
		l.log.WithError(err).Errorf("Failed to consume %d events", len(events))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// LogSink writes every event to a logger.
type LogSink struct {
	log *logrus.Entry
}

func NewLogSink(log *logrus.Entry) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Consume(_ context.Context, events []Event) error {
	s.log.Infof("Received %d events", len(events))
	for i, e := range events {
		s.log.WithFields(logrus.Fields{
			"index":      i,
			"event_time": e.Time.Format(time.RFC3339Nano),
			"type":       e.Type,
		}).Info(recordText(e.Record))
	}
	return nil
}

// recordText unquotes string records such as function log lines.
func recordText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
