package monitor

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Monitor event names pushed to connected dashboards.
const (
	EventState      = "state"
	EventInputState = "input_state"
	EventProgress   = "progress"
)

// RedisPublisher publishes monitor events for cross-instance broadcast.
type RedisPublisher interface {
	PublishVideoEvent(videoID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to a video's monitor channel.
type RedisSubscriber interface {
	SubscribeVideo(videoID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains video_id -> set of connections and broadcasts lifecycle
// events to them. Redis pub/sub fans events out to other instances.
// Connections are watch-only; the hub never reads application messages.
type Hub struct {
	videos   map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// NewHub creates a monitor hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		videos:   make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a video room. Starts the Redis subscription
// for this video if it is the first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.videos[c.VideoID] == nil {
		h.videos[c.VideoID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeVideo(c.VideoID, func(event string, payload []byte) {
				h.broadcast(c.VideoID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.VideoID] = cancel
			}
		}
	}
	h.videos[c.VideoID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("monitor client joined", zap.String("client_id", c.ID), zap.String("video_id", c.VideoID.String()))
}

// Unregister removes a client. Cancels the Redis subscription when the
// last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.videos[c.VideoID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.videos, c.VideoID)
			if cancel, ok := h.subs[c.VideoID]; ok {
				cancel()
				delete(h.subs, c.VideoID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("monitor client left", zap.String("client_id", c.ID), zap.String("video_id", c.VideoID.String()))
}

// broadcast sends a message to all local clients watching a video.
func (h *Hub) broadcast(videoID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.videos[videoID]
	h.mu.RUnlock()

	if clients == nil {
		return
	}
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish sends an event to local watchers and to Redis for other
// instances.
func (h *Hub) Publish(videoID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.broadcast(videoID, event, json.RawMessage(data))
	if h.redis != nil {
		_ = h.redis.PublishVideoEvent(videoID, event, data)
	}
}

// WatcherCount returns the number of connected clients for a video.
func (h *Hub) WatcherCount(videoID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.videos[videoID])
}
