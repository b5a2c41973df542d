package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/LexiconIndonesia/career-crawler-service/common"
)

type ConsumerOptions struct {
	// AckWait is how long a delivery may stay unacknowledged before
	// redelivery; sessions extend it with InProgress heartbeats.
	AckWait time.Duration
	// MaxAckPending caps the deliveries a worker holds at once.
	MaxAckPending int
}

// ConsumerName is the durable consumer name of subject.
func ConsumerName(subject string) string {
	return "consumer_" + strings.ReplaceAll(subject, ".", "-")
}

// SetupStreams creates the work and dead letter streams.
func SetupStreams(ctx context.Context, client *NatsBroker) error {
	if _, err := EnsureStream(ctx, client, common.StreamName, []string{common.SubjectAnalyse, common.SubjectCheck}); err != nil {
		return fmt.Errorf("ensuring work stream: %w", err)
	}
	if _, err := EnsureStream(ctx, client, common.DeadLetterStream, []string{common.DeadLetterAnalyser, common.DeadLetterChecker}); err != nil {
		return fmt.Errorf("ensuring dead letter stream: %w", err)
	}
	return nil
}

// GetJetStreamConsumer returns the durable, explicitly acked consumer of subject.
func GetJetStreamConsumer(ctx context.Context, client *NatsBroker, streamName, subject string, opts ConsumerOptions) (jetstream.Consumer, error) {
	stream, err := EnsureStream(ctx, client, streamName, []string{subject})
	if err != nil {
		return nil, err
	}

	consumerName := ConsumerName(subject)
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       opts.AckWait,
		MaxAckPending: opts.MaxAckPending,
	})
	if err != nil {
		return nil, fmt.Errorf("creating consumer %s: %w", consumerName, err)
	}

	log.Info().
		Str("stream", streamName).
		Str("subject", subject).
		Str("consumer", consumerName).
		Msg("Got JetStream consumer")

	return consumer, nil
}

// EnsureStream creates the stream or adds the missing subjects to it.
func EnsureStream(ctx context.Context, client *NatsBroker, name string, subjects []string) (jetstream.Stream, error) {
	stream, err := client.GetStream(ctx, name)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			log.Error().Err(err).Str("stream_name", name).Msg("Failed to get stream for unknown reasons")
			return nil, err
		}
		return client.CreateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: subjects,
			Storage:  jetstream.FileStorage,
		})
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	config := info.Config
	missing := MissingSubjects(config.Subjects, subjects)
	if len(missing) == 0 {
		return stream, nil
	}

	config.Subjects = append(config.Subjects, missing...)
	log.Info().Strs("subjects", config.Subjects).Str("stream_name", name).Msg("Updating stream with new subjects")
	return client.CreateStream(ctx, config)
}

// MissingSubjects returns the entries of wanted not in have, in order.
func MissingSubjects(have, wanted []string) []string {
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[s] = struct{}{}
	}
	var missing []string
	for _, s := range wanted {
		if _, ok := set[s]; !ok {
			missing = append(missing, s)
			set[s] = struct{}{}
		}
	}
	return missing
}
