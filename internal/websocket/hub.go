package websocket

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yourusername/eventreg-api/internal/metrics"
	"github.com/yourusername/eventreg-api/internal/service"
	"go.uber.org/zap"
)

const (
	// DefaultAvailabilityChannel — общий pub/sub канал всех экземпляров
	DefaultAvailabilityChannel = "eventreg:availability"

	broadcastBufferSize = 64
	publishTimeout      = 2 * time.Second
)

// Hub рассылает обновления доступности подключенным клиентам. С pub/sub
// провайдером каждый экземпляр получает обновления, опубликованные любым другим.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	provider   PubSubProvider
	channel    string
	subscribed atomic.Bool

	clientCount atomic.Int64
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewHub создает хаб. provider может быть nil для одиночного режима.
func NewHub(provider PubSubProvider, channel string, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if channel == "" {
		channel = DefaultAvailabilityChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, broadcastBufferSize),
		done:       make(chan struct{}),
		provider:   provider,
		channel:    channel,
		metrics:    m,
		logger:     logger.Named("ws_hub"),
	}
}

// Run владеет набором клиентов и завершается при отмене ctx
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	var remote <-chan []byte
	if h.provider != nil {
		ch, err := h.provider.Subscribe(ctx, h.channel)
		if err != nil {
			h.logger.Warn("availability subscription failed, running in local mode", zap.Error(err))
		} else {
			remote = ch
			h.subscribed.Store(true)
		}
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.CloseSend()
				delete(h.clients, c)
			}
			h.updateClientCount()
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.updateClientCount()

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.CloseSend()
				h.updateClientCount()
			}

		case msg := <-h.broadcast:
			h.deliver(msg)

		case msg, ok := <-remote:
			if !ok {
				h.logger.Warn("availability subscription closed, running in local mode")
				remote = nil
				h.subscribed.Store(false)
				continue
			}
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg []byte) {
	for c := range h.clients {
		if !c.trySend(msg) {
			// Медленный клиент: отключаем, он переподключится и получит свежий снимок
			delete(h.clients, c)
			c.CloseSend()
		}
	}
	h.updateClientCount()
}

func (h *Hub) updateClientCount() {
	h.clientCount.Store(int64(len(h.clients)))
	if h.metrics != nil {
		h.metrics.SetAvailabilityClients(len(h.clients))
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// Serve подключает conn к хабу и ставит initial первым сообщением
func (h *Hub) Serve(conn *websocket.Conn, initial *service.Availability) {
	c := NewClient(h, conn)
	if initial != nil {
		if msg, err := newEvent(AVAILABILITY_UPDATE, initial); err == nil {
			c.trySend(msg)
		}
	}
	c.Start()
}

// PublishAvailability реализует service.AvailabilityPublisher
func (h *Hub) PublishAvailability(a service.Availability) {
	msg, err := newEvent(AVAILABILITY_UPDATE, a)
	if err != nil {
		h.logger.Error("failed to encode availability update", zap.Error(err))
		return
	}

	// Без активной подписки свои клиенты иначе не получат обновление
	if h.provider != nil && h.subscribed.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		err := h.provider.Publish(ctx, h.channel, msg)
		if err == nil {
			return
		}
		h.logger.Warn("availability publish failed, broadcasting locally", zap.Error(err))
	}
	h.BroadcastLocal(msg)
}

// BroadcastLocal отправляет msg только клиентам этого экземпляра
func (h *Hub) BroadcastLocal(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("availability broadcast queue full, update dropped")
	}
}
