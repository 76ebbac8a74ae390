package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrTopicNotReady = errors.New("kafka topic not ready")

type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	// Retention is applied as retention.ms when set. The status topic keeps a bounded history.
	Retention time.Duration
}

func (s TopicSpec) config() kafka.TopicConfig {
	tc := kafka.TopicConfig{
		Topic:             s.Name,
		NumPartitions:     max(s.NumPartitions, 1),
		ReplicationFactor: max(s.ReplicationFactor, 1),
	}
	if s.Retention > 0 {
		tc.ConfigEntries = append(tc.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: strconv.FormatInt(s.Retention.Milliseconds(), 10),
		})
	}
	return tc
}

// dialAny returns a connection to the first broker that answers.
func dialAny(ctx context.Context, brokers []string) (*kafka.Conn, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	var errs []error
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b, err))
	}
	return nil, errors.Join(errs...)
}

// EnsureTopics creates the missing topics through the controller and waits until every one
// reports partitions. Existing topics are left untouched.
func EnsureTopics(ctx context.Context, brokers []string, wait time.Duration, log *zap.Logger, specs ...TopicSpec) error {
	if log == nil {
		log = zap.NewNop()
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}

	conn, err := dialAny(ctx, brokers)
	if err != nil {
		log.Warn("kafka dial failed", zap.Error(err))
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka dial controller: %w", err)
	}
	defer cc.Close()

	configs := make([]kafka.TopicConfig, 0, len(specs))
	for _, s := range specs {
		configs = append(configs, s.config())
	}
	if err := cc.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		log.Debug("create topics", zap.Error(err))
	}

	deadline := time.Now().Add(wait)
	pending := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		pending[s.Name] = struct{}{}
	}
	for len(pending) > 0 {
		for name := range pending {
			if ps, err := conn.ReadPartitions(name); err == nil && len(ps) > 0 {
				log.Info("topic ready", zap.String("topic", name), zap.Int("partitions", len(ps)))
				delete(pending, name)
			}
		}
		if len(pending) == 0 {
			break
		}
		if time.Now().After(deadline) {
			names := make([]string, 0, len(pending))
			for n := range pending {
				names = append(names, n)
			}
			return fmt.Errorf("%w: %v", ErrTopicNotReady, names)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return nil
}
