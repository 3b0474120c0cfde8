package message

import (
	"context"
	"encoding/json"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"whatsapp-bot/internal/whatsapp"
)

type Kind string

const (
	KindConversation        Kind = "conversation"
	KindExtendedText        Kind = "extendedTextMessage"
	KindImage               Kind = "imageMessage"
	KindVideo               Kind = "videoMessage"
	KindDocument            Kind = "documentMessage"
	KindAudio               Kind = "audioMessage"
	KindSticker             Kind = "stickerMessage"
	KindInteractiveResponse Kind = "interactiveResponseMessage"
	KindButtonsResponse     Kind = "buttonsResponseMessage"
	KindListResponse        Kind = "listResponseMessage"
	KindTemplateButtonReply Kind = "templateButtonReplyMessage"
	KindOther               Kind = "other"
)

var mediaTypes = map[Kind]string{
	KindImage:    "image",
	KindVideo:    "video",
	KindDocument: "document",
	KindAudio:    "audio",
	KindSticker:  "sticker",
}

// Key addresses a message within a chat.
type Key struct {
	Chat        types.JID
	ID          types.MessageID
	Participant types.JID
}

// Quoted is the message a normalized message replies to.
type Quoted struct {
	Key       Key
	Message   *waE2E.Message
	Type      Kind
	Body      string
	IsMedia   bool
	MediaType string
	Mimetype  string

	Download func(ctx context.Context) ([]byte, error)
}

// Message is the read-only view of one inbound event handed to plugins.
// The capability fields are bound to the connection the event arrived on.
type Message struct {
	ID        types.MessageID
	Chat      types.JID
	Sender    types.JID
	PushName  string
	FromMe    bool
	IsGroup   bool
	GroupInfo *types.GroupInfo

	Body      string
	Type      Kind
	IsMedia   bool
	MediaType string
	Mimetype  string
	Quoted    *Quoted

	IsButtonResponse bool
	ButtonID         string

	Raw *events.Message

	// Reply and Send quote the original message.
	Reply       func(ctx context.Context, text string) error
	Send        func(ctx context.Context, text string) error
	SendContent func(ctx context.Context, content *waE2E.Message) error
	React       func(ctx context.Context, emoji string) error
	// Forward re-sends the content to another chat. Own messages are only
	// marked as forwarded when force is set.
	Forward  func(ctx context.Context, to types.JID, force bool) error
	Download func(ctx context.Context) ([]byte, error)
}

// Normalize builds the message view of evt. Group metadata is fetched from
// conn for group chats; a failed fetch leaves GroupInfo nil.
func Normalize(ctx context.Context, conn whatsapp.Conn, evt *events.Message) *Message {
	info := evt.Info
	content := whatsapp.Unwrap(evt.Message)

	m := &Message{
		ID:      info.ID,
		Chat:    info.Chat,
		FromMe:  info.IsFromMe,
		IsGroup: info.Chat.Server == types.GroupServer,
		Raw:     evt,
	}

	switch {
	case info.IsFromMe && !conn.OwnID().IsEmpty():
		m.Sender = conn.OwnID()
	case m.IsGroup:
		m.Sender = info.Sender
	default:
		m.Sender = info.Chat
	}

	m.PushName = info.PushName
	if m.PushName == "" {
		m.PushName = m.Sender.User
	}
	if m.PushName == "" {
		m.PushName = "Unknown"
	}

	if m.IsGroup {
		group, err := conn.GetGroupInfo(ctx, info.Chat)
		if err != nil {
			zap.L().Debug("group metadata unavailable", zap.String("chat", info.Chat.String()), zap.Error(err))
		} else {
			m.GroupInfo = group
		}
	}

	m.Type = KindOf(content)
	m.MediaType, m.IsMedia = mediaTypes[m.Type]
	m.Mimetype = mimetypeOf(content)
	m.ButtonID, m.IsButtonResponse = buttonReply(content)
	m.Body = Body(content)
	m.Quoted = quotedOf(conn, info.Chat, content)

	bind(m, conn, content)
	return m
}

// KindOf reports the populated top-level content field of msg.
func KindOf(msg *waE2E.Message) Kind {
	switch {
	case msg == nil:
		return KindOther
	case msg.Conversation != nil:
		return KindConversation
	case msg.ExtendedTextMessage != nil:
		return KindExtendedText
	case msg.ImageMessage != nil:
		return KindImage
	case msg.VideoMessage != nil:
		return KindVideo
	case msg.DocumentMessage != nil:
		return KindDocument
	case msg.AudioMessage != nil:
		return KindAudio
	case msg.StickerMessage != nil:
		return KindSticker
	case msg.InteractiveResponseMessage != nil:
		return KindInteractiveResponse
	case msg.ButtonsResponseMessage != nil:
		return KindButtonsResponse
	case msg.ListResponseMessage != nil:
		return KindListResponse
	case msg.TemplateButtonReplyMessage != nil:
		return KindTemplateButtonReply
	}
	return KindOther
}

// Body extracts the text of msg. The first non-empty candidate wins.
func Body(msg *waE2E.Message) string {
	id, _ := buttonReply(msg)
	candidates := []string{
		id,
		msg.GetInteractiveResponseMessage().GetBody().GetText(),
		msg.GetConversation(),
		msg.GetExtendedTextMessage().GetText(),
		msg.GetImageMessage().GetCaption(),
		msg.GetVideoMessage().GetCaption(),
		msg.GetDocumentMessage().GetCaption(),
		msg.GetButtonsResponseMessage().GetSelectedButtonID(),
		msg.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID(),
		msg.GetTemplateButtonReplyMessage().GetSelectedID(),
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// buttonReply returns the id carried by an interactive (native flow) reply.
func buttonReply(msg *waE2E.Message) (string, bool) {
	flow := msg.GetInteractiveResponseMessage().GetNativeFlowResponseMessage()
	if flow == nil {
		return "", false
	}
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(flow.GetParamsJSON()), &params); err != nil || params.ID == "" {
		return "", false
	}
	return params.ID, true
}

func mimetypeOf(msg *waE2E.Message) string {
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetMimetype()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetMimetype()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetMimetype()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage().GetMimetype()
	}
	return ""
}

func quotedOf(conn whatsapp.Conn, chat types.JID, msg *waE2E.Message) *Quoted {
	ci := whatsapp.ContextInfo(msg)
	if ci.GetQuotedMessage() == nil {
		return nil
	}
	content := whatsapp.Unwrap(ci.GetQuotedMessage())

	participant := chat
	if p := ci.GetParticipant(); p != "" {
		if jid, err := types.ParseJID(p); err == nil {
			participant = jid
		}
	}

	q := &Quoted{
		Key:      Key{Chat: chat, ID: ci.GetStanzaID(), Participant: participant},
		Message:  content,
		Type:     KindOf(content),
		Mimetype: mimetypeOf(content),
	}
	q.MediaType, q.IsMedia = mediaTypes[q.Type]
	q.Body = quotedBody(content)
	q.Download = func(ctx context.Context) ([]byte, error) {
		media := whatsapp.Media(content)
		if media == nil {
			return nil, nil
		}
		return conn.Download(ctx, media)
	}
	return q
}

func quotedBody(msg *waE2E.Message) string {
	for _, c := range []string{
		msg.GetConversation(),
		msg.GetExtendedTextMessage().GetText(),
		msg.GetImageMessage().GetCaption(),
		msg.GetVideoMessage().GetCaption(),
		msg.GetDocumentMessage().GetCaption(),
	} {
		if c != "" {
			return c
		}
	}
	return ""
}

func bind(m *Message, conn whatsapp.Conn, content *waE2E.Message) {
	quote := func(text string) *waE2E.Message {
		return whatsapp.QuotedText(text, m.ID, m.Raw.Info.Sender, m.Raw.Message)
	}

	m.Reply = func(ctx context.Context, text string) error {
		_, err := conn.SendMessage(ctx, m.Chat, quote(text))
		return err
	}
	m.Send = m.Reply
	m.SendContent = func(ctx context.Context, c *waE2E.Message) error {
		_, err := conn.SendMessage(ctx, m.Chat, c)
		return err
	}
	m.React = func(ctx context.Context, emoji string) error {
		_, err := conn.SendMessage(ctx, m.Chat, whatsapp.Reaction(m.Chat, m.Raw.Info.Sender, m.ID, m.FromMe, emoji))
		return err
	}
	m.Forward = func(ctx context.Context, to types.JID, force bool) error {
		out := content
		if !m.FromMe || force {
			out = whatsapp.Forwarded(content)
		}
		_, err := conn.SendMessage(ctx, to, out)
		return err
	}
	m.Download = func(ctx context.Context) ([]byte, error) {
		if m.IsMedia {
			return conn.Download(ctx, whatsapp.Media(content))
		}
		if m.Quoted != nil && m.Quoted.IsMedia {
			return m.Quoted.Download(ctx)
		}
		return nil, nil
	}
}
