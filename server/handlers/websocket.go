package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/san-kum/fitpipe/server/engine"
	"github.com/san-kum/fitpipe/server/models"
	"github.com/san-kum/fitpipe/server/processor"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
	readLimit  = 1 << 20
)

type WebSocketHandler struct {
	processor *processor.FrameProcessor
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

// ClientMessage is sent by the client. Frame is set for "frame" messages
// and Exercise for "exercise" messages.
type ClientMessage struct {
	Type      string               `json:"type"`
	Exercise  string               `json:"exercise,omitempty"`
	Frame     *models.FramePayload `json:"frame,omitempty"`
	Timestamp int64                `json:"timestamp"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// wsClient serialises writes to one connection; the read loop, the ping
// routine and scoring feedback all write.
type wsClient struct {
	conn      *websocket.Conn
	sessionID string
	logger    *zap.Logger
	mutex     sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func NewWebSocketHandler(processor *processor.FrameProcessor, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		processor: processor,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(allowedOrigins, origin)
			},
		},
	}
}

func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	exercise, err := engine.ParseExercise(c.DefaultQuery("exercise", engine.PushUp.String()))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	clientIP := c.ClientIP()
	info, err := h.processor.CreateSession(clientIP, exercise)
	if err != nil {
		h.logger.Error("Failed to create websocket session", zap.Error(err))
		if werr := conn.WriteJSON(ServerMessage{Type: "error", Data: gin.H{"message": err.Error()}}); werr != nil {
			h.logger.Warn("Failed to report session error to client", zap.Error(werr))
		}
		return
	}

	client := &wsClient{
		conn:      conn,
		sessionID: info.ID,
		logger:    h.logger.With(zap.String("session_id", info.ID)),
		done:      make(chan struct{}),
	}
	defer func() {
		client.close()
		if err := h.processor.CloseSession(info.ID); err != nil {
			h.logger.Debug("Session already gone", zap.Error(err))
		}
	}()

	if err := h.processor.SetListener(info.ID, client.sendFeedback); err != nil {
		h.logger.Error("Failed to attach feedback listener",
			zap.String("session_id", info.ID),
			zap.Error(err))
		client.send("error", gin.H{"message": err.Error()})
		return
	}

	h.logger.Info("WebSocket client connected",
		zap.String("client_ip", clientIP),
		zap.String("session_id", info.ID))
	client.send("state", info)

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go client.pingRoutine(pingPeriod)

	for {
		var message ClientMessage
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleMessage(client, &message)
	}
}

func (h *WebSocketHandler) handleMessage(client *wsClient, message *ClientMessage) {
	switch message.Type {
	case "frame":
		h.processFrame(client, message)
	case "exercise":
		h.switchExercise(client, message)
	case "ping":
		client.send("pong", gin.H{"timestamp": time.Now().UnixMilli()})
	default:
		client.logger.Warn("Unknown message type received", zap.String("type", message.Type))
		client.sendError("Unknown message type: " + message.Type)
	}
}

func (h *WebSocketHandler) processFrame(client *wsClient, message *ClientMessage) {
	if message.Frame == nil {
		client.sendError("frame message without frame")
		return
	}
	if message.Frame.Timestamp == 0 {
		message.Frame.Timestamp = message.Timestamp
	}

	frame, err := message.Frame.ToFrame()
	if err != nil {
		client.sendError(err.Error())
		return
	}

	result, err := h.processor.ProcessFrame(client.sessionID, frame)
	if err != nil {
		client.logger.Error("Frame processing failed", zap.Error(err))
		client.sendError("Frame processing failed")
		return
	}

	client.send("state", result)
	switch result.Outcome {
	case engine.OutcomeCompleted.String():
		client.send("rep_completed", gin.H{
			"attempt_id": result.AttemptID,
			"exercise":   result.Exercise,
			"rep_count":  result.RepCount,
		})
	case engine.OutcomeFailed.String():
		client.send("rep_failed", gin.H{
			"attempt_id": result.AttemptID,
			"exercise":   result.Exercise,
			"status":     result.Status,
		})
	}
}

func (h *WebSocketHandler) switchExercise(client *wsClient, message *ClientMessage) {
	exercise, err := engine.ParseExercise(message.Exercise)
	if err != nil {
		client.sendError(err.Error())
		return
	}

	info, err := h.processor.SwitchExercise(client.sessionID, exercise)
	if err != nil {
		client.logger.Error("Exercise switch failed", zap.Error(err))
		client.sendError("Exercise switch failed")
		return
	}
	client.send("state", info)
}

func (c *wsClient) send(messageType string, data any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	select {
	case <-c.done:
		return
	default:
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ServerMessage{Type: messageType, Data: data}); err != nil {
		c.logger.Error("Failed to send WebSocket message", zap.Error(err))
	}
}

func (c *wsClient) sendError(errorMsg string) {
	c.send("error", gin.H{
		"message":   errorMsg,
		"timestamp": time.Now().Unix(),
	})
}

func (c *wsClient) sendFeedback(rec models.AttemptRecord) {
	c.send("feedback", rec)
}

func (c *wsClient) pingRoutine(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mutex.Unlock()
			if err != nil {
				c.logger.Warn("Failed to send ping", zap.Error(err))
				c.close()
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
