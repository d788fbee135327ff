package web

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"reasoner/pkg/api"
	"reasoner/pkg/llm"
	"reasoner/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const channelID = "web"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // UI 與後端分離部署
	},
}

// WebConfig is the "web" entry of config.json channels.
type WebConfig struct {
	Port          int    `json:"port"`
	JWTSecret     string `json:"jwt_secret"`     // empty disables auth on /ws
	AttachmentDir string `json:"attachment_dir"` // default data/attachments
}

// IncomingMessage is the JSON frame a browser sends. Plain-text frames are
// accepted as well.
type IncomingMessage struct {
	Text   string `json:"text"`
	Images []struct {
		Name string `json:"name"`
		Mime string `json:"mime"`
		Data string `json:"data"` // base64
	} `json:"images"`
}

type outgoing struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Value string `json:"value,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type webClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// safeConn serializes writes; gorilla allows one concurrent writer.
type safeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *safeConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(websocket.TextMessage, data)
}

// WebChannel serves a WebSocket chat at /ws. Each socket is one chat,
// identified by the "session" query parameter or a fresh UUID.
type WebChannel struct {
	config      WebConfig
	sessions    *llm.SessionManager
	server      *echo.Echo
	connections map[string]*safeConn // ChatID -> socket
	mu          sync.RWMutex
}

func NewWebChannel(cfg WebConfig, sessions *llm.SessionManager) *WebChannel {
	if cfg.AttachmentDir == "" {
		cfg.AttachmentDir = utils.DefaultAttachmentDir
	}
	return &WebChannel{
		config:      cfg,
		sessions:    sessions,
		connections: make(map[string]*safeConn),
	}
}

func (c *WebChannel) ID() string {
	return channelID
}

// routes builds the echo instance. Split from Start for tests.
func (c *WebChannel) routes(ctx api.ChannelContext) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("20M"))

	e.GET("/api/v1/health", c.handleHealth)

	ws := e.Group("/ws")
	if c.config.JWTSecret != "" {
		ws.Use(c.jwtMiddleware)
	}
	ws.GET("", func(ec echo.Context) error {
		return c.handleWebSocket(ec, ctx)
	})
	return e
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	c.server = c.routes(ctx)
	addr := fmt.Sprintf(":%d", c.config.Port)
	slog.Info("Web API listening", "port", c.config.Port, "auth", c.config.JWTSecret != "")

	go func() {
		if err := c.server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("Web API server error", "error", err)
		}
	}()
	return nil
}

func (c *WebChannel) Stop() error {
	// hijack 後的連線不受 Shutdown 管理，先手動關閉
	c.mu.Lock()
	for id, conn := range c.connections {
		conn.Close()
		delete(c.connections, id)
	}
	c.mu.Unlock()

	if c.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.server.Shutdown(ctx)
}

func (c *WebChannel) conn(session api.SessionContext) (*safeConn, error) {
	c.mu.RLock()
	conn, ok := c.connections[session.ChatID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("web chat %s not connected", session.ChatID)
	}
	return conn, nil
}

// Send writes one text frame followed by a done marker.
func (c *WebChannel) Send(session api.SessionContext, message string) error {
	conn, err := c.conn(session)
	if err != nil {
		return err
	}
	if err := conn.writeJSON(outgoing{Type: llm.BlockTypeText, Text: message}); err != nil {
		return err
	}
	return conn.writeJSON(outgoing{Type: "done"})
}

// SendSignal implements api.SignalingChannel
func (c *WebChannel) SendSignal(session api.SessionContext, signal string) error {
	conn, err := c.conn(session)
	if err != nil {
		return err
	}
	return conn.writeJSON(outgoing{Type: "signal", Value: signal})
}

func (c *WebChannel) handleHealth(ec echo.Context) error {
	c.mu.RLock()
	n := len(c.connections)
	c.mu.RUnlock()
	return ec.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": n,
	})
}

func (c *WebChannel) jwtMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ec echo.Context) error {
		tokenString := ec.QueryParam("token")
		if auth := ec.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
			tokenString = strings.TrimPrefix(auth, "Bearer ")
		}
		if tokenString == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
		}

		claims := &webClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(c.config.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			slog.Warn("Rejected web token", "remote", ec.RealIP(), "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		ec.Set("user_id", claims.Subject)
		ec.Set("username", claims.Name)
		return next(ec)
	}
}

func (c *WebChannel) handleWebSocket(ec echo.Context, ctx api.ChannelContext) error {
	rawConn, err := upgrader.Upgrade(ec.Response(), ec.Request(), nil)
	if err != nil {
		slog.Error("WS upgrade failed", "error", err)
		return nil
	}
	conn := &safeConn{Conn: rawConn}

	chatID := ec.QueryParam("session")
	if chatID == "" {
		chatID = uuid.NewString()
	}
	session := api.SessionContext{
		ChannelID: channelID,
		ChatID:    chatID,
		UserID:    ec.RealIP(),
		Username:  "WebUser",
	}
	if uid, _ := ec.Get("user_id").(string); uid != "" {
		session.UserID = uid
	}
	if name, _ := ec.Get("username").(string); name != "" {
		session.Username = name
	}

	c.mu.Lock()
	if old, ok := c.connections[chatID]; ok {
		old.Close()
	}
	c.connections[chatID] = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.connections[chatID] == conn {
			delete(c.connections, chatID)
		}
		c.mu.Unlock()
		conn.Close()
	}()

	slog.Info("Web client connected", "chat", chatID, "user", session.UserID)

	if err := conn.writeJSON(outgoing{Type: "session", Value: chatID}); err != nil {
		return nil
	}
	c.sendHistory(conn, session)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("Web client disconnected", "chat", chatID, "error", err)
			return nil
		}

		content, files := c.decodeFrame(frame)
		ctx.OnMessage(c.ID(), &api.UnifiedMessage{
			Session: session,
			Content: content,
			Files:   files,
			Raw:     frame,
		})
	}
}

func (c *WebChannel) sendHistory(conn *safeConn, session api.SessionContext) {
	h, ok := c.sessions.Lookup(session.Key())
	if !ok {
		return
	}
	msgs := h.GetMessagesForUI()
	if len(msgs) == 0 {
		return
	}
	if err := conn.writeJSON(outgoing{Type: "history", Data: msgs}); err != nil {
		slog.Error("Failed to send history", "chat", session.ChatID, "error", err)
	}
}

// decodeFrame parses a JSON frame and stores its images on disk. Anything
// that is not JSON is taken as plain text.
func (c *WebChannel) decodeFrame(frame []byte) (string, []api.FileAttachment) {
	var incoming IncomingMessage
	if err := json.Unmarshal(frame, &incoming); err != nil {
		return string(frame), nil
	}

	var files []api.FileAttachment
	for _, img := range incoming.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			slog.Error("Failed to decode base64 image", "name", img.Name, "error", err)
			continue
		}
		path, detected, err := utils.SaveAttachment(c.config.AttachmentDir, data)
		if err != nil {
			slog.Error("Failed to save image", "name", img.Name, "error", err)
			continue
		}
		mimeType := img.Mime
		if mimeType == "" {
			mimeType = detected
		}
		files = append(files, api.FileAttachment{
			Filename: img.Name,
			MimeType: mimeType,
			Path:     path,
		})
		slog.Debug("Saved web image", "name", img.Name, "path", path)
	}
	return incoming.Text, files
}
