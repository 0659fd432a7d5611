// Package kafka implements bus.MessageBus on top of segmentio/kafka-go. The
// spec channel uses a hash-partitioned Writer so that every message for a
// given key lands on the same partition, preserving per-key publish
// ordering; the ack channel is a Reader bound to a consumer group.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/egabancho/feast/internal/coordinator/bus"
	"github.com/egabancho/feast/internal/coordinator/domain"
	ferrors "github.com/egabancho/feast/pkg/errors"
	"github.com/egabancho/feast/pkg/logger"
)

// ackWire mirrors the ack channel's wire payload: featureSetVersion as
// int32, jobName as string. Decoding is forgiving; validation of the
// decoded values is the ack listener's job, not this transport's.
type ackWire struct {
	FeatureSetVersion int32  `json:"featureSetVersion"`
	JobName           string `json:"jobName"`
}

// Bus is a kafka-backed bus.MessageBus.
type Bus struct {
	writer *kafkago.Writer
	reader *kafkago.Reader
	log    *logger.Logger
}

var _ bus.MessageBus = (*Bus)(nil)

// Config names the brokers and topics this Bus connects to.
type Config struct {
	Brokers       []string
	SpecTopic     string
	AckTopic      string
	ConsumerGroup string
}

// New builds a Bus. The writer uses kafka-go's default hash balancer, which
// is keyed, so same-key messages route to the same partition.
func New(cfg Config) *Bus {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.SpecTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.AckTopic,
		GroupID: cfg.ConsumerGroup,
	})

	return &Bus{writer: writer, reader: reader, log: logger.WithField("component", "bus.kafka")}
}

type publishHandle struct {
	err error
}

func (h publishHandle) Wait(ctx context.Context) error {
	return h.err
}

func (b *Bus) PublishSpec(ctx context.Context, key string, payload domain.FeatureSetSpec) (bus.PublishHandle, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return nil, ferrors.WrapBusError("spec", "marshal", err)
	}

	err = b.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return nil, ferrors.WrapBusError("spec", "publish", err)
	}

	// WriteMessages blocks until the broker acknowledges (RequiredAcks), so
	// the handle already carries a settled result.
	return publishHandle{err: nil}, nil
}

func (b *Bus) ConsumeAcks(ctx context.Context) (<-chan bus.AckRecord, error) {
	out := make(chan bus.AckRecord)

	go func() {
		defer close(out)
		for {
			msg, err := b.reader.ReadMessage(ctx)
			if err != nil {
				// io.EOF means the reader has been closed.
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				b.log.Warn("ack read failed", "error", err)
				continue
			}

			var wire ackWire
			if err := json.Unmarshal(msg.Value, &wire); err != nil {
				// Malformed payload: discarded, not surfaced as a
				// transport error.
				b.log.Debug("discarding malformed ack payload", "error", err)
				continue
			}

			rec := bus.AckRecord{
				Key:               string(msg.Key),
				FeatureSetVersion: int64(wire.FeatureSetVersion),
				JobName:           wire.JobName,
			}

			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (b *Bus) Close() error {
	werr := b.writer.Close()
	rerr := b.reader.Close()
	return ferrors.JoinErrors(werr, rerr)
}
