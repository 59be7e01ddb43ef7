package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/yourusername/eventreg-api/internal/service"
	"github.com/yourusername/eventreg-api/internal/websocket"
	"go.uber.org/zap"
)

// WSHandler подключает клиентов к потоку обновлений доступности
type WSHandler struct {
	hub           *websocket.Hub
	registrations *service.RegistrationService
	upgrader      gorillaws.Upgrader
	logger        *zap.Logger
}

// NewWSHandler создает обработчик. allowedOrigins синхронизирован с CORS.
func NewWSHandler(hub *websocket.Hub, registrations *service.RegistrationService, allowedOrigins []string, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ws_handler")

	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &WSHandler{
		hub:           hub,
		registrations: registrations,
		logger:        logger,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Небраузерные клиенты не присылают Origin
				if origin == "" {
					return true
				}
				if _, ok := allowed[origin]; ok {
					return true
				}
				logger.Info("rejected websocket origin", zap.String("origin", origin))
				return false
			},
		},
	}
}

// HandleConnection обновляет соединение и отправляет текущий снимок
func (h *WSHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже записал ответ
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	initial, err := h.registrations.GetAvailability(c.Request.Context())
	if err != nil {
		h.logger.Warn("initial availability unavailable", zap.Error(err))
		initial = nil
	}
	h.hub.Serve(conn, initial)
}
