package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/config/channel"
)

const discordAPI = "https://discord.com/api/v10"

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
)

// discordMessage is the subset of a MESSAGE_CREATE payload we use.
type discordMessage struct {
	ID           string   `json:"id"`
	ChannelID    string   `json:"channel_id"`
	GuildID      string   `json:"guild_id"`
	Content      string   `json:"content"`
	MentionRoles []string `json:"mention_roles"`
	Author       struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
}

// DiscordChannel connects to the Discord Gateway WebSocket and answers
// messages that mention the bot directly or through one of its roles.
type DiscordChannel struct {
	Base
	cfg          *channel.DiscordConfig
	messageLimit int
	apiBase      string
	httpClient   *http.Client

	writeMu sync.Mutex // gorilla allows one concurrent writer
	seqMu   sync.Mutex
	seq     *int

	mu       sync.RWMutex
	botID    string
	botRoles map[string][]string // guild ID -> role IDs held by the bot
}

func NewDiscordChannel(cfg *channel.DiscordConfig, b bus.Bus, messageLimit int) *DiscordChannel {
	return &DiscordChannel{
		Base:         NewBase(bus.ChannelDiscord, b, cfg.AllowFrom),
		cfg:          cfg,
		messageLimit: messageLimit,
		apiBase:      discordAPI,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		botRoles:     make(map[string][]string),
	}
}

func (d *DiscordChannel) Name() string { return string(bus.ChannelDiscord) }

func (d *DiscordChannel) Start(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: token not configured")
	}
	for {
		if err := d.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("discord: gateway disconnected", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (d *DiscordChannel) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.cfg.GatewayURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// ReadMessage does not observe ctx; closing the socket unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	slog.Info("discord: gateway connected")
	return d.gatewayLoop(ctx, conn)
}

func (d *DiscordChannel) gatewayLoop(ctx context.Context, conn *websocket.Conn) error {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var payload struct {
			Op int             `json:"op"`
			S  *int            `json:"s"`
			T  string          `json:"t"`
			D  json.RawMessage `json:"d"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		if payload.S != nil {
			d.seqMu.Lock()
			d.seq = payload.S
			d.seqMu.Unlock()
		}

		switch payload.Op {
		case opHello:
			var hello struct {
				HeartbeatInterval int `json:"heartbeat_interval"`
			}
			_ = json.Unmarshal(payload.D, &hello)
			interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
			go d.heartbeatLoop(hbCtx, conn, interval)
			if err := d.identify(conn); err != nil {
				return err
			}
		case opDispatch:
			d.dispatch(ctx, payload.T, payload.D)
		case opReconnect, opInvalidSession:
			return fmt.Errorf("discord: gateway requested reconnect (op=%d)", payload.Op)
		}
	}
}

func (d *DiscordChannel) dispatch(ctx context.Context, event string, data json.RawMessage) {
	switch event {
	case "READY":
		var ready struct {
			User struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"user"`
		}
		if err := json.Unmarshal(data, &ready); err == nil {
			d.mu.Lock()
			d.botID = ready.User.ID
			d.mu.Unlock()
			slog.Info("discord: ready", "bot", ready.User.Username, "id", ready.User.ID)
		}
	case "GUILD_MEMBER_UPDATE":
		var upd struct {
			GuildID string   `json:"guild_id"`
			Roles   []string `json:"roles"`
			User    struct {
				ID string `json:"id"`
			} `json:"user"`
		}
		if err := json.Unmarshal(data, &upd); err == nil && upd.User.ID == d.selfID() {
			d.mu.Lock()
			d.botRoles[upd.GuildID] = upd.Roles
			d.mu.Unlock()
		}
	case "MESSAGE_CREATE":
		var msg discordMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			go d.handleMessageCreate(ctx, msg)
		}
	}
}

func (d *DiscordChannel) selfID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.botID
}

func (d *DiscordChannel) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	if interval <= 0 {
		return
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			d.seqMu.Lock()
			payload := map[string]any{"op": opHeartbeat, "d": d.seq}
			d.seqMu.Unlock()
			_ = d.writeJSON(conn, payload)
		case <-ctx.Done():
			return
		}
	}
}

func (d *DiscordChannel) identify(conn *websocket.Conn) error {
	return d.writeJSON(conn, map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token":   d.cfg.Token,
			"intents": d.cfg.Intents,
			"properties": map[string]any{
				"os": "chatrelay", "browser": "chatrelay", "device": "chatrelay",
			},
		},
	})
}

func (d *DiscordChannel) writeJSON(conn *websocket.Conn, v any) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (d *DiscordChannel) handleMessageCreate(ctx context.Context, msg discordMessage) {
	if msg.Author.Bot || msg.Author.ID == "" || msg.ChannelID == "" {
		return
	}
	if !d.isMentioned(ctx, msg) {
		return
	}
	slog.Info("discord: bot mentioned", "channel", msg.ChannelID, "user", msg.Author.Username)

	text := StripMentions(msg.Content)
	if text == "" {
		slog.Warn("discord: empty message after removing mentions", "channel", msg.ChannelID)
		return
	}

	d.HandleMessage(msg.Author.ID, msg.ChannelID, text, map[string]any{
		"message_id": msg.ID,
		"guild_id":   msg.GuildID,
		"username":   msg.Author.Username,
	})
}

// isMentioned reports whether msg addresses the bot with <@id>, <@!id>, or a
// mention of a role the bot holds in the guild.
func (d *DiscordChannel) isMentioned(ctx context.Context, msg discordMessage) bool {
	self := d.selfID()
	if self == "" {
		return false
	}
	if strings.Contains(msg.Content, "<@"+self+">") || strings.Contains(msg.Content, "<@!"+self+">") {
		return true
	}
	if msg.GuildID == "" || len(msg.MentionRoles) == 0 {
		return false
	}
	roles, err := d.rolesInGuild(ctx, msg.GuildID)
	if err != nil {
		slog.Warn("discord: cannot resolve bot roles", "guild", msg.GuildID, "err", err)
		return false
	}
	for _, r := range msg.MentionRoles {
		if slices.Contains(roles, r) {
			slog.Debug("discord: bot mentioned through role", "channel", msg.ChannelID, "role", r)
			return true
		}
	}
	return false
}

func (d *DiscordChannel) rolesInGuild(ctx context.Context, guildID string) ([]string, error) {
	d.mu.RLock()
	roles, ok := d.botRoles[guildID]
	self := d.botID
	d.mu.RUnlock()
	if ok {
		return roles, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.apiBase+"/guilds/"+guildID+"/members/"+self, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+d.cfg.Token)
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discord: HTTP %d fetching guild member", resp.StatusCode)
	}
	var member struct {
		Roles []string `json:"roles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&member); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.botRoles[guildID] = member.Roles
	d.mu.Unlock()
	return member.Roles, nil
}

// SendTyping refreshes the "bot is typing" indicator once.
func (d *DiscordChannel) SendTyping(ctx context.Context, chatID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.apiBase+"/channels/"+chatID+"/typing", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+d.cfg.Token)
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Send delivers msg in parts of at most messageLimit characters. Only the
// first part references the original message.
func (d *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	url := d.apiBase + "/channels/" + msg.ChatId() + "/messages"
	chunks := SplitMessage(msg.Content(), d.messageLimit)
	if len(chunks) > 1 {
		slog.Info("discord: reply split", "parts", len(chunks), "chars", len(msg.Content()))
	}
	for i, chunk := range chunks {
		payload := map[string]any{"content": chunk}
		if i == 0 && msg.ReplyTo() != "" {
			payload["message_reference"] = map[string]any{"message_id": msg.ReplyTo()}
			payload["allowed_mentions"] = map[string]any{"replied_user": false}
		}
		if err := d.postJSON(ctx, url, payload); err != nil {
			return fmt.Errorf("discord: part %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func (d *DiscordChannel) postJSON(ctx context.Context, url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bot "+d.cfg.Token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := d.httpClient.Do(req)
		if err != nil {
			if werr := sleepCtx(ctx, time.Second); werr != nil {
				return werr
			}
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			var rate struct {
				RetryAfter float64 `json:"retry_after"`
			}
			_ = json.Unmarshal(body, &rate)
			wait := time.Duration(rate.RetryAfter*1000) * time.Millisecond
			if wait <= 0 {
				wait = time.Second
			}
			if werr := sleepCtx(ctx, wait); werr != nil {
				return werr
			}
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("discord: HTTP %d: %s", resp.StatusCode, string(body))
		}
		return nil
	}
	return fmt.Errorf("discord: max retries exceeded")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
