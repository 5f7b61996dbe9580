// Package progress 维护渲染进度的 WebSocket 推送中心。
// UI 按会话订阅，协调器每次拿到新进度就向该会话广播。
package progress

import (
	"encoding/json"
	"sync"
	"time"

	"MiniMixLab/logger"
	"MiniMixLab/model"

	"github.com/gorilla/websocket"
)

// Update 推送给UI的进度消息
type Update struct {
	SessionID string          `json:"sessionId"`
	JobID     string          `json:"jobId"`
	Status    model.JobStatus `json:"status"`
	Percent   float64         `json:"percent"`
	Message   string          `json:"message,omitempty"`
	ResultURL string          `json:"resultUrl,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client 一个订阅了会话进度的 WebSocket 连接
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string
}

// Hub 进度推送管理中心
type Hub struct {
	// 会话 -> 订阅连接集合
	sessions map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu   sync.RWMutex
	done chan struct{}
}

type broadcastMessage struct {
	sessionID string
	data      []byte
}

// NewHub 创建进度推送 Hub
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToSession(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	close(h.done)
}

// Register 注册订阅连接
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销订阅连接
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish 向会话的所有订阅者推送一条进度
func (h *Hub) Publish(sessionID string, job model.RenderJob) {
	update := Update{
		SessionID: sessionID,
		JobID:     job.ID,
		Status:    job.Status,
		Percent:   job.ProgressPercent,
		Message:   job.Message,
		ResultURL: job.ResultURL,
		Timestamp: time.Now().UnixMilli(),
	}

	data, err := json.Marshal(update)
	if err != nil {
		logger.Error("进度消息序列化失败", logger.ErrorField(err))
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{sessionID: sessionID, data: data}:
	default:
		// 广播队列满时丢弃，进度消息允许丢
		logger.Warn("进度广播队列已满，消息丢弃",
			logger.String("sessionId", sessionID))
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[client.SessionID] == nil {
		h.sessions[client.SessionID] = make(map[*Client]bool)
	}
	h.sessions[client.SessionID][client] = true

	logger.Info("进度订阅已建立",
		logger.String("sessionId", client.SessionID),
		logger.Int("subscribers", len(h.sessions[client.SessionID])))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.sessions[client.SessionID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)

			if len(clients) == 0 {
				delete(h.sessions, client.SessionID)
			}
		}
	}
}

func (h *Hub) broadcastToSession(msg *broadcastMessage) {
	h.mu.RLock()
	clients, ok := h.sessions[msg.sessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		select {
		case client.Send <- msg.data:
		default:
			// 发送缓冲区满，移除订阅。
			// 直接调内部方法：这里跑在 Run 循环里，不能再往自己的通道发
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.sessions {
		for client := range clients {
			close(client.Send)
		}
	}
	h.sessions = make(map[string]map[*Client]bool)
}

// SubscriberCount 返回会话当前的订阅连接数
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// ========== Client 读写循环 ==========

// ReadPump 读取循环：订阅端不发业务消息，只处理关闭和心跳
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("进度订阅读取出错",
					logger.ErrorField(err),
					logger.String("sessionId", c.SessionID))
			}
			return
		}
	}
}

// WritePump 写入循环，定期发 ping 保活
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
