package remote

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/justa-cai/parrot-recorder/internal/screen"
)

// 远程按键
const (
	ActionPrimary = "primary"
	ActionPlay    = "play"
)

// Controller 远程界面可以操作的界面控制器
type Controller interface {
	OnPrimaryButtonPress(ctx context.Context)
	OnPlayButtonPress(ctx context.Context)
	State() screen.State
}

type actionMessage struct {
	Action string `json:"action"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler 处理 /ws 连接。ctx 是按键操作使用的上下文，不随连接结束而取消。
func Handler(ctx context.Context, hub *Hub, ctrl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warnf("WebSocket升级失败: %v", err)
			return
		}

		hub.Register(conn)
		defer hub.Unregister(conn)

		if err := hub.send(conn, NewStateMessage(ctrl.State())); err != nil {
			hub.log.Warnf("发送初始状态失败: %v", err)
			return
		}

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var msg actionMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				hub.send(conn, errorMessage{Type: "error", Error: "无效的JSON"})
				continue
			}

			// 按键不等待设备操作完成
			switch msg.Action {
			case ActionPrimary:
				go ctrl.OnPrimaryButtonPress(ctx)
			case ActionPlay:
				go ctrl.OnPlayButtonPress(ctx)
			default:
				hub.send(conn, errorMessage{Type: "error", Error: "未知的操作: " + msg.Action})
			}
		}
	}
}
