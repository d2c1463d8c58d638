package channels

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	slackgo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/config/channel"
)

const slackMaxMsgLen = 4000

// SlackChannel implements Slack via Socket Mode. Channel messages are answered
// on app_mention; direct messages are always answered.
type SlackChannel struct {
	Base
	cfg       *channel.SlackConfig
	webClient *slackgo.Client
	smClient  *socketmode.Client
	botUserID string
}

func NewSlackChannel(cfg *channel.SlackConfig, b bus.Bus) *SlackChannel {
	return &SlackChannel{
		Base: NewBase(bus.ChannelSlack, b, cfg.AllowFrom),
		cfg:  cfg,
	}
}

func (s *SlackChannel) Name() string { return string(bus.ChannelSlack) }

func (s *SlackChannel) Start(ctx context.Context) error {
	if s.cfg.BotToken == "" || s.cfg.AppToken == "" {
		return fmt.Errorf("slack: bot/app token not configured")
	}

	s.webClient = slackgo.New(s.cfg.BotToken,
		slackgo.OptionAppLevelToken(s.cfg.AppToken))

	resp, err := s.webClient.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	s.botUserID = resp.UserID
	slog.Info("slack: connected", "bot_user_id", s.botUserID)

	s.smClient = socketmode.New(s.webClient)
	go s.smClient.RunContext(ctx) //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-s.smClient.Events:
			if !ok {
				return nil
			}
			s.handleEvent(evt)
		}
	}
}

func (s *SlackChannel) handleEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	s.smClient.Ack(*evt.Request)
	cb, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}

	switch ev := cb.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		s.dispatch(ev.User, ev.Channel, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp, "channel")
	case *slackevents.MessageEvent:
		// Channel messages arrive again as app_mention; only DMs are handled here.
		if ev.ChannelType != "im" || ev.SubType != "" || ev.BotID != "" {
			return
		}
		s.dispatch(ev.User, ev.Channel, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp, ev.ChannelType)
	}
}

func (s *SlackChannel) dispatch(userID, channelID, text, ts, threadTS, channelType string) {
	if userID == "" || channelID == "" || userID == s.botUserID {
		return
	}
	if s.cfg.ReplyInThread && threadTS == "" && channelType != "im" {
		threadTS = ts
	}
	s.HandleMessage(userID, channelID, s.stripMention(text), map[string]any{
		"message_id": ts,
		"slack": map[string]any{
			"thread_ts":    threadTS,
			"channel_type": channelType,
		},
	})
}

func (s *SlackChannel) stripMention(text string) string {
	if s.botUserID == "" {
		return text
	}
	re := regexp.MustCompile(`<@` + regexp.QuoteMeta(s.botUserID) + `>\s*`)
	return strings.TrimSpace(re.ReplaceAllString(text, ""))
}

func (s *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if s.webClient == nil {
		return fmt.Errorf("slack: not connected")
	}
	meta, _ := msg.Metadata()["slack"].(map[string]any)
	threadTS, _ := meta["thread_ts"].(string)

	for _, chunk := range SplitMessage(msg.Content(), slackMaxMsgLen) {
		options := []slackgo.MsgOption{slackgo.MsgOptionText(chunk, false)}
		if threadTS != "" {
			options = append(options, slackgo.MsgOptionTS(threadTS))
		}
		if _, _, err := s.webClient.PostMessageContext(ctx, msg.ChatId(), options...); err != nil {
			return fmt.Errorf("slack: post: %w", err)
		}
	}
	return nil
}
