package wa

import (
	"strconv"
	"strings"

	"github.com/matheus3301/wabot/internal/transport"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// NormalizeJID strips the device suffix so the same contact always maps to
// one conversation key.
func NormalizeJID(jid string) string {
	if jid == "" {
		return ""
	}
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return jid
	}
	return parsed.ToNonAD().String()
}

// ParseMessage reduces a live whatsmeow message to the transport shape.
func ParseMessage(evt *events.Message) transport.InboundMessage {
	return transport.InboundMessage{
		ID:        evt.Info.ID,
		ChatJID:   evt.Info.Chat.ToNonAD().String(),
		Sender:    evt.Info.Sender.ToNonAD().String(),
		PushName:  evt.Info.PushName,
		Text:      extractTextBody(evt.Message),
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
	}
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if btn := msg.GetButtonsResponseMessage(); btn != nil {
		return btn.GetSelectedDisplayText()
	}
	return ""
}

// composeText flattens an outbound message into a plain text body. Media is
// referenced by URL and buttons are listed as numbered options.
func composeText(out transport.Outbound) string {
	var b strings.Builder
	b.WriteString(out.Text)
	if out.MediaURL != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(out.MediaURL)
	}
	if len(out.Buttons) > 0 {
		b.WriteString("\n")
		for i, label := range out.Buttons {
			b.WriteString("\n")
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString(". ")
			b.WriteString(label)
		}
	}
	return b.String()
}

// contactSnapshot converts the device contact store into a directory snapshot.
func contactSnapshot(all map[types.JID]types.ContactInfo) transport.ContactSnapshot {
	snap := transport.ContactSnapshot{Valid: true, Contacts: make([]transport.RawContact, 0, len(all))}
	for jid, info := range all {
		name := info.FullName
		if name == "" {
			name = info.FirstName
		}
		snap.Contacts = append(snap.Contacts, transport.RawContact{
			ID:           jid.ToNonAD().String(),
			Name:         name,
			VerifiedName: info.BusinessName,
			Notify:       info.PushName,
		})
	}
	return snap
}
