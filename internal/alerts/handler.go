package alerts

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/videohub/backend/pkg/response"
)

// snsMessage is the envelope SNS POSTs to https subscribers.
type snsMessage struct {
	Type         string `json:"Type"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
	TopicARN     string `json:"TopicArn"`
}

// Handler receives SNS notifications on the alert webhook.
type Handler struct {
	agg    *Aggregator
	client *http.Client
	logger *zap.Logger
}

// NewHandler creates an alerts webhook handler.
func NewHandler(agg *Aggregator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		agg:    agg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Notify handles POST /notify. Subscription confirmations are followed;
// notifications carry the alert detail as the message body.
func (h *Handler) Notify(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	var msg snsMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		response.BadRequest(c, "invalid notification")
		return
	}

	switch msg.Type {
	case "SubscriptionConfirmation":
		if msg.SubscribeURL == "" {
			response.BadRequest(c, "missing subscribe URL")
			return
		}
		resp, err := h.client.Get(msg.SubscribeURL)
		if err != nil {
			h.logger.Error("confirm subscription failed", zap.Error(err), zap.String("topic_arn", msg.TopicARN))
			response.Internal(c, "failed to confirm subscription")
			return
		}
		defer resp.Body.Close()
		h.logger.Info("subscription confirmed", zap.String("topic_arn", msg.TopicARN))
		response.OK(c, gin.H{"confirmed": true})

	case "Notification":
		var alert Alert
		if err := json.Unmarshal([]byte(msg.Message), &alert); err != nil {
			h.logger.Warn("unparseable alert", zap.Error(err))
			response.OK(c, gin.H{"handled": false})
			return
		}
		if err := h.agg.HandleAlert(c.Request.Context(), alert); err != nil {
			h.logger.Error("handle alert failed", zap.Error(err), zap.String("channel_arn", alert.ChannelARN))
			response.Internal(c, "failed to handle alert")
			return
		}
		response.OK(c, gin.H{"handled": true})

	default:
		response.OK(c, gin.H{"handled": false})
	}
}
