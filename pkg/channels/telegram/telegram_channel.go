package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"reasoner/pkg/api"
	"reasoner/pkg/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	channelID = "telegram"

	// 相簿訊息分多個 update 到達，等待後合併
	mediaGroupDelay = time.Second
	maxPhotoBytes   = 20 << 20
)

// TelegramConfig is the "telegram" entry of config.json channels.
type TelegramConfig struct {
	Token         string  `json:"token"`          // BotFather token, ${VAR} is expanded
	AllowedUsers  []int64 `json:"allowed_users"`  // empty allows everyone
	AttachmentDir string  `json:"attachment_dir"` // default data/attachments
}

// TelegramChannel is a long-polling bot. Photos are stored as attachments
// and albums are merged into one message.
type TelegramChannel struct {
	config       TelegramConfig
	bot          *tgbotapi.BotAPI
	messageLimit int
	mediaGroups  map[string]*mediaGroupBuffer
	httpClient   *http.Client // photo downloads
	mu           sync.Mutex
	stopCtx      context.Context // aborts the in-flight long poll
	stopCancel   context.CancelFunc
}

type mediaGroupBuffer struct {
	session  api.SessionContext
	content  string
	photoIDs []string
	timer    *time.Timer
}

func NewTelegramChannel(cfg TelegramConfig, msgLimit int, downloadTimeoutMs int) (*TelegramChannel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// 連線綁定 stopCtx，Stop 時中斷卡住的 long poll，避免 reload 後 409 Conflict
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	pollClient := &http.Client{
		Timeout: 75 * time.Second,
		Transport: &http.Transport{
			DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
				merged, mergedCancel := context.WithCancel(dialCtx)
				go func() {
					select {
					case <-ctx.Done():
						mergedCancel()
					case <-merged.Done():
					}
				}()
				return dialer.DialContext(merged, network, addr)
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, pollClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	if cfg.AttachmentDir == "" {
		cfg.AttachmentDir = utils.DefaultAttachmentDir
	}
	return &TelegramChannel{
		config:       cfg,
		bot:          bot,
		messageLimit: msgLimit,
		mediaGroups:  make(map[string]*mediaGroupBuffer),
		httpClient:   &http.Client{Timeout: time.Duration(downloadTimeoutMs) * time.Millisecond},
		stopCtx:      ctx,
		stopCancel:   cancel,
	}, nil
}

func (t *TelegramChannel) ID() string {
	return channelID
}

// Start runs the update loop in the background.
func (t *TelegramChannel) Start(ctx api.ChannelContext) error {
	go t.poll(ctx)
	return nil
}

func (t *TelegramChannel) poll(ctx api.ChannelContext) {
	offset := 0
	for {
		select {
		case <-t.stopCtx.Done():
			return
		default:
		}

		req := tgbotapi.NewUpdate(offset)
		req.Timeout = 60

		updates, err := t.bot.GetUpdates(req)
		if err != nil {
			if t.stopCtx.Err() != nil {
				return
			}
			slog.Debug("Failed to get telegram updates", "error", err)
			select {
			case <-t.stopCtx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID < offset {
				continue
			}
			offset = update.UpdateID + 1
			if update.Message != nil {
				t.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (t *TelegramChannel) allowed(userID int64) bool {
	return len(t.config.AllowedUsers) == 0 || slices.Contains(t.config.AllowedUsers, userID)
}

func (t *TelegramChannel) handleMessage(ctx api.ChannelContext, m *tgbotapi.Message) {
	if m.From == nil {
		return
	}
	if !t.allowed(m.From.ID) {
		slog.Warn("Telegram user not allowed", "user_id", m.From.ID, "username", m.From.UserName)
		return
	}

	session := api.SessionContext{
		ChannelID: channelID,
		UserID:    strconv.FormatInt(m.From.ID, 10),
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		Username:  m.From.UserName,
	}

	// 最後一張是最大尺寸
	var photoID string
	if len(m.Photo) > 0 {
		photoID = m.Photo[len(m.Photo)-1].FileID
	}

	content := m.Text
	if content == "" {
		content = m.Caption
	}

	if m.MediaGroupID != "" {
		t.bufferMediaGroup(ctx, m.MediaGroupID, session, content, photoID)
		return
	}

	if photoID == "" {
		ctx.OnMessage(t.ID(), &api.UnifiedMessage{Session: session, Content: content, Raw: m})
		return
	}

	// 下載不阻塞 update loop
	go func() {
		var files []api.FileAttachment
		if file, err := t.downloadPhoto(photoID); err == nil {
			files = append(files, *file)
		} else {
			slog.Error("Photo download failed", "error", err)
		}
		ctx.OnMessage(t.ID(), &api.UnifiedMessage{Session: session, Content: content, Files: files, Raw: m})
	}()
}

func (t *TelegramChannel) bufferMediaGroup(ctx api.ChannelContext, groupID string, session api.SessionContext, text, photoID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf, ok := t.mediaGroups[groupID]
	if ok {
		if text != "" {
			if buf.content != "" {
				buf.content += "\n"
			}
			buf.content += text
		}
		if photoID != "" {
			buf.photoIDs = append(buf.photoIDs, photoID)
		}
		buf.timer.Reset(mediaGroupDelay)
		return
	}

	buf = &mediaGroupBuffer{session: session, content: text}
	if photoID != "" {
		buf.photoIDs = append(buf.photoIDs, photoID)
	}
	t.mediaGroups[groupID] = buf
	buf.timer = time.AfterFunc(mediaGroupDelay, func() {
		t.flushMediaGroup(ctx, groupID)
	})
}

func (t *TelegramChannel) flushMediaGroup(ctx api.ChannelContext, groupID string) {
	t.mu.Lock()
	buf, ok := t.mediaGroups[groupID]
	delete(t.mediaGroups, groupID)
	t.mu.Unlock()
	if !ok {
		return
	}

	files := make([]api.FileAttachment, len(buf.photoIDs))
	var wg sync.WaitGroup
	for i, id := range buf.photoIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			file, err := t.downloadPhoto(id)
			if err != nil {
				slog.Error("Media group download failed", "file_id", id, "error", err)
				return
			}
			files[i] = *file
		}()
	}
	wg.Wait()

	var received []api.FileAttachment
	for _, f := range files {
		if f.Path != "" {
			received = append(received, f)
		}
	}

	ctx.OnMessage(t.ID(), &api.UnifiedMessage{Session: buf.session, Content: buf.content, Files: received})
	slog.Info("Media group sent", "group", groupID, "images", fmt.Sprintf("%d/%d", len(received), len(buf.photoIDs)))
}

// downloadPhoto fetches a file from Telegram into the attachment dir.
func (t *TelegramChannel) downloadPhoto(fileID string) (*api.FileAttachment, error) {
	info, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get photo file info: %w", err)
	}

	resp, err := t.httpClient.Get(info.Link(t.config.Token))
	if err != nil {
		return nil, fmt.Errorf("failed to download photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download photo: status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	path, mimeType, err := utils.SaveAttachment(t.config.AttachmentDir, data)
	if err != nil {
		return nil, err
	}
	return &api.FileAttachment{Filename: info.FilePath, MimeType: mimeType, Path: path}, nil
}

func (t *TelegramChannel) Stop() error {
	t.stopCancel()
	if c, ok := t.bot.Client.(*http.Client); ok && c != nil {
		if tr, ok := c.Transport.(*http.Transport); ok {
			tr.CloseIdleConnections()
		}
	}
	return nil
}

// SendSignal implements api.SignalingChannel; "thinking" shows as typing.
func (t *TelegramChannel) SendSignal(session api.SessionContext, signal string) error {
	if signal != api.SignalThinking {
		return nil
	}
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return err
	}
	_, err = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func (t *TelegramChannel) Send(session api.SessionContext, message string) error {
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id for telegram: %s", session.ChatID)
	}

	for i, chunk := range splitMessage(message, t.messageLimit) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("telegram send failed at chunk %d: %w", i, err)
		}
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit runes, preferring to
// break after a newline in the second half of a piece.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
