// Package events publishes finished analyses to NATS for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/atc-analyzer/pkg/types"
)

// DefaultSubjectPrefix is prepended to the per-status subject
const DefaultSubjectPrefix = "atc.analysis"

// Publisher receives every finished analysis
type Publisher interface {
	Publish(ctx context.Context, result *types.AnalysisResult) error
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, *types.AnalysisResult) error { return nil }

// Event is the message body sent for one analysis
type Event struct {
	AnalysisID        string              `json:"analysis_id"`
	Status            string              `json:"status"`
	InferenceMode     types.InferenceMode `json:"inference_mode"`
	Degraded          bool                `json:"degraded"`
	TotalCowsDetected int                 `json:"total_cows_detected"`
	AverageScore      float64             `json:"average_score"`
	Timestamp         int64               `json:"timestamp"`
}

// conn is the subset of *nats.Conn used for publishing
type conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher sends events on <prefix>.<status>, e.g. atc.analysis.ok
type NATSPublisher struct {
	nc     conn
	prefix string
	logger logrus.FieldLogger
}

var _ Publisher = (*NATSPublisher)(nil)

// Connect dials a NATS server and returns a publisher using it
func Connect(url, prefix string, logger logrus.FieldLogger) (*NATSPublisher, *nats.Conn, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	nc, err := nats.Connect(url,
		nats.Name("atc-analyzer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return NewNATSPublisher(nc, prefix, logger), nc, nil
}

// NewNATSPublisher creates a publisher on an existing connection
func NewNATSPublisher(nc conn, prefix string, logger logrus.FieldLogger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NATSPublisher{
		nc:     nc,
		prefix: prefix,
		logger: logger.WithField("component", "nats_publisher"),
	}
}

// Subject returns the subject an analysis with the given status is sent on
func (p *NATSPublisher) Subject(status string) string {
	return p.prefix + "." + status
}

// Publish sends a summary of result
func (p *NATSPublisher) Publish(ctx context.Context, result *types.AnalysisResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := NewEvent(result)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis event: %w", err)
	}

	subject := p.Subject(ev.Status)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish analysis event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"subject":     subject,
		"analysis_id": ev.AnalysisID,
		"cows":        ev.TotalCowsDetected,
	}).Debug("Analysis event sent")
	return nil
}

// NewEvent summarizes an analysis result
func NewEvent(result *types.AnalysisResult) Event {
	return Event{
		AnalysisID:        result.Metadata.AnalysisID,
		Status:            result.Status,
		InferenceMode:     result.Metadata.InferenceMode,
		Degraded:          result.Metadata.Degraded,
		TotalCowsDetected: result.TotalCowsDetected,
		AverageScore:      result.AverageScore,
		Timestamp:         result.Metadata.Timestamp.Unix(),
	}
}
