// Package remote 通过WebSocket提供的远程界面：推送状态，接收按键
package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/justa-cai/parrot-recorder/internal/screen"
	"github.com/justa-cai/parrot-recorder/internal/view"
	"github.com/sirupsen/logrus"
)

// StateMessage 推送给远程界面的状态
type StateMessage struct {
	Type          string `json:"type"`
	IsRecording   bool   `json:"is_recording"`
	HasRecording  bool   `json:"has_recording"`
	LastRecording string `json:"last_recording,omitempty"`
	Busy          bool   `json:"busy"`
	Heading       string `json:"heading"`
}

// NewStateMessage 由状态快照生成消息
func NewStateMessage(st screen.State) StateMessage {
	return StateMessage{
		Type:          "state",
		IsRecording:   st.IsRecording,
		HasRecording:  st.HasRecording(),
		LastRecording: string(st.LastRecording),
		Busy:          st.Busy,
		Heading:       view.Heading(st),
	}
}

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 16
)

var errSendQueueFull = errors.New("发送队列已满")

// client 一个远程连接，写操作只在它自己的 writeLoop 中进行
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub 管理所有远程连接。Broadcast 只把消息放进各连接的发送队列，不会阻塞调用方。
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*client
	log     logrus.FieldLogger
}

// NewHub 创建Hub
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]*client),
		log:     log,
	}
}

// Register 注册连接并启动它的写循环
func (h *Hub) Register(conn *websocket.Conn) {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[conn] = c
	n := len(h.clients)
	h.mu.Unlock()

	go h.writeLoop(c)
	h.log.Debugf("远程连接接入: %s, 当前连接数=%d", conn.RemoteAddr(), n)
}

// Unregister 注销并关闭连接，可以重复调用
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	close(c.done)
	conn.Close()
	h.log.Debugf("远程连接断开: %s, 当前连接数=%d", conn.RemoteAddr(), n)
}

// Len 当前连接数
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast 向所有连接推送状态，发送队列满的连接会被断开
func (h *Hub) Broadcast(st screen.State) {
	msg, err := json.Marshal(NewStateMessage(st))
	if err != nil {
		h.log.Errorf("序列化状态失败: %v", err)
		return
	}

	var slow []*websocket.Conn
	h.mu.Lock()
	for conn, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range slow {
		h.log.Warnf("远程连接 %s 接收太慢，断开连接", conn.RemoteAddr())
		h.Unregister(conn)
	}
}

// send 向单个连接发送消息，最多等待 writeTimeout
func (h *Hub) send(conn *websocket.Conn, v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	h.mu.Lock()
	c, ok := h.clients[conn]
	h.mu.Unlock()
	if !ok {
		return errors.New("连接已断开")
	}

	timer := time.NewTimer(writeTimeout)
	defer timer.Stop()
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errors.New("连接已断开")
	case <-timer.C:
		return errSendQueueFull
	}
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Warnf("推送状态失败: %v", err)
				h.Unregister(c.conn)
				return
			}
		}
	}
}
