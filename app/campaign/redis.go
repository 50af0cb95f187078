package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/factory"
)

const channelPrefix = "campaign-progress:"

func progressChannel(campaignID string) string {
	return channelPrefix + campaignID
}

// RedisPublisher fans snapshots out to other processes over Redis pub/sub.
type RedisPublisher struct {
	client redis.UniversalClient
	logger logrus.FieldLogger
}

func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client, logger: factory.NewModuleLogger("campaign-redis")}
}

func (p *RedisPublisher) Publish(ctx context.Context, snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, progressChannel(snapshot.CampaignID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish campaign progress: %w", err)
	}
	return nil
}

// Relay forwards every snapshot published by any process into local until
// ctx is cancelled.
func (p *RedisPublisher) Relay(ctx context.Context, local Publisher) error {
	pubsub := p.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to campaign progress: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var snapshot Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err != nil {
				p.logger.WithError(err).WithField("channel", msg.Channel).Warn("invalid_progress_message")
				continue
			}
			if snapshot.CampaignID == "" {
				snapshot.CampaignID = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			if err := local.Publish(ctx, snapshot); err != nil {
				p.logger.WithError(err).WithField("campaign_id", snapshot.CampaignID).Warn("progress_relay_failed")
			}
		}
	}
}
