package realtime

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coachbook/internal/domain/notification"
)

const DefaultChannel = "coachbook:realtime"

type bridgeMessage struct {
	UserID int64           `json:"user_id"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisBridge carries pushes from processes without sockets (the worker) to
// the API processes that hold them.
type RedisBridge struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisBridge(client *redis.Client, channel string, log *zap.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBridge{client: client, channel: channel, log: log}
}

// Notify implements notification.RealtimeNotifier by publishing to redis.
func (b *RedisBridge) Notify(ctx context.Context, userID int64, n *notification.Notification) error {
	frame, err := json.Marshal(&WSEvent{Type: EventNotification, Payload: n})
	if err != nil {
		return err
	}
	body, err := json.Marshal(bridgeMessage{UserID: userID, Frame: frame})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, body).Err()
}

// Forward delivers published frames into hub until ctx is done.
func (b *RedisBridge) Forward(ctx context.Context, hub *Hub) {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	b.log.Info("realtime bridge subscribed", zap.String("channel", b.channel))
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var m bridgeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.log.Warn("realtime bridge: bad message", zap.Error(err))
				continue
			}
			hub.deliver(m.UserID, m.Frame)
		}
	}
}
