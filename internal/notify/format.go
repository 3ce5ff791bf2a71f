// Package notify renders stored inbound events as Slack notifications and
// delivers them through the Slack Web API or an incoming webhook.
package notify

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/mattjoyce/courier/internal/directory"
	"github.com/mattjoyce/courier/internal/store"
)

const unmappedPrefix = "⚠️ Unmapped sender"

// Notification is a rendered message ready for a Sender.
type Notification struct {
	Channel  string
	Text     string
	Blocks   []slack.Block
	Unmapped bool
}

// Formatter renders notifications. FallbackChannel receives unmapped senders.
type Formatter struct {
	FallbackChannel string
}

// Format renders ev for entry. A nil entry marks the sender as unmapped.
func (f Formatter) Format(ev store.InboundEvent, entry *directory.Entry) Notification {
	header := headerFor(ev.Source)

	lines := []string{header, "From: " + ev.From}
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, "*From:*\n"+ev.From, false, false),
	}
	if entry != nil {
		name := entry.DisplayName
		if name == "" {
			name = entry.ClientID
		}
		lines = append(lines, "Client: "+name)
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, "*Client:*\n"+name, false, false))
	}
	lines = append(lines, ev.Body)

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, header, true, false)),
		slack.NewSectionBlock(nil, fields, nil),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*Message:*\n"+ev.Body, false, false), nil, nil),
	}

	n := Notification{
		Channel: f.channelFor(ev, entry),
		Text:    strings.Join(lines, "\n"),
		Blocks:  blocks,
	}
	if entry == nil {
		n.Unmapped = true
		n.Text = unmappedPrefix + "\n" + n.Text
		warn := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*"+unmappedPrefix+"*", false, false), nil, nil)
		n.Blocks = append([]slack.Block{warn}, n.Blocks...)
	}
	return n
}

// channelFor picks the event override, then the directory channel, then the fallback.
func (f Formatter) channelFor(ev store.InboundEvent, entry *directory.Entry) string {
	if c := strings.TrimSpace(ev.SlackChannel); c != "" {
		return c
	}
	if entry != nil && strings.TrimSpace(entry.NotificationChannel) != "" {
		return strings.TrimSpace(entry.NotificationChannel)
	}
	return f.FallbackChannel
}

func headerFor(source string) string {
	if source == "" || source == "whatsapp" {
		return "📲 WhatsApp message"
	}
	return fmt.Sprintf("📩 %s message", source)
}

// RelayText renders the message posted by the relay trigger.
func RelayText(ev store.InboundEvent) string {
	clientID := "unknown-client"
	if ev.ClientID != nil && *ev.ClientID != "" {
		clientID = *ev.ClientID
	}
	text := ev.Text
	if text == "" {
		text = ev.Body
	}

	var b strings.Builder
	b.WriteString("📩 *New client message*\n")
	fmt.Fprintf(&b, "*clientId:* %s\n", clientID)
	fmt.Fprintf(&b, "*slackChannel:* %s\n", ev.SlackChannel)
	fmt.Fprintf(&b, "*source:* %s\n", orUnknown(ev.Source))
	fmt.Fprintf(&b, "*channel:* %s\n", orUnknown(ev.Channel))
	fmt.Fprintf(&b, "*text:* %s", text)
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
