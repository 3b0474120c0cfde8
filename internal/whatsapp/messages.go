package whatsapp

import (
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

func Text(body string) *waE2E.Message {
	return &waE2E.Message{Conversation: proto.String(body)}
}

// QuotedText builds a text reply that quotes the message id sent by sender.
func QuotedText(body string, id types.MessageID, sender types.JID, quoted *waE2E.Message) *waE2E.Message {
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(body),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:      proto.String(id),
				Participant:   proto.String(sender.ToNonAD().String()),
				QuotedMessage: quoted,
			},
		},
	}
}

// MentionText builds a text message that notifies every jid in mentions.
func MentionText(body string, mentions []types.JID) *waE2E.Message {
	ids := make([]string, 0, len(mentions))
	for _, jid := range mentions {
		ids = append(ids, jid.ToNonAD().String())
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(body),
			ContextInfo: &waE2E.ContextInfo{MentionedJID: ids},
		},
	}
}

// Reaction builds an emoji reaction to the message id in chat. An empty emoji
// removes an earlier reaction.
func Reaction(chat, sender types.JID, id types.MessageID, fromMe bool, emoji string) *waE2E.Message {
	key := &waCommon.MessageKey{
		RemoteJID: proto.String(chat.String()),
		FromMe:    proto.Bool(fromMe),
		ID:        proto.String(id),
	}
	if !fromMe && chat.Server == types.GroupServer {
		key.Participant = proto.String(sender.ToNonAD().String())
	}
	return &waE2E.Message{
		ReactionMessage: &waE2E.ReactionMessage{
			Key:               key,
			Text:              proto.String(emoji),
			SenderTimestampMS: proto.Int64(time.Now().UnixMilli()),
		},
	}
}

// Forwarded returns a copy of msg marked as forwarded. The forwarding score
// is bumped from whatever the original carried.
func Forwarded(msg *waE2E.Message) *waE2E.Message {
	out := proto.Clone(msg).(*waE2E.Message)

	score := uint32(1)
	if ci := ContextInfo(out); ci != nil && ci.GetForwardingScore() > 0 {
		score = ci.GetForwardingScore() + 1
	}
	ci := &waE2E.ContextInfo{
		IsForwarded:     proto.Bool(true),
		ForwardingScore: proto.Uint32(score),
	}

	if out.Conversation != nil {
		out.ExtendedTextMessage = &waE2E.ExtendedTextMessage{Text: out.Conversation}
		out.Conversation = nil
	}
	setContextInfo(out, ci)
	return out
}

// ContextInfo returns the context attached to the content of msg, if any.
func ContextInfo(msg *waE2E.Message) *waE2E.ContextInfo {
	switch {
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetContextInfo()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetContextInfo()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetContextInfo()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetContextInfo()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetContextInfo()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage().GetContextInfo()
	}
	return nil
}

func setContextInfo(msg *waE2E.Message, ci *waE2E.ContextInfo) {
	switch {
	case msg.ExtendedTextMessage != nil:
		msg.ExtendedTextMessage.ContextInfo = ci
	case msg.ImageMessage != nil:
		msg.ImageMessage.ContextInfo = ci
	case msg.VideoMessage != nil:
		msg.VideoMessage.ContextInfo = ci
	case msg.AudioMessage != nil:
		msg.AudioMessage.ContextInfo = ci
	case msg.DocumentMessage != nil:
		msg.DocumentMessage.ContextInfo = ci
	case msg.StickerMessage != nil:
		msg.StickerMessage.ContextInfo = ci
	}
}

// Unwrap strips view-once and ephemeral envelopes.
func Unwrap(msg *waE2E.Message) *waE2E.Message {
	for msg != nil {
		switch {
		case msg.GetViewOnceMessage().GetMessage() != nil:
			msg = msg.GetViewOnceMessage().GetMessage()
		case msg.GetViewOnceMessageV2().GetMessage() != nil:
			msg = msg.GetViewOnceMessageV2().GetMessage()
		case msg.GetViewOnceMessageV2Extension().GetMessage() != nil:
			msg = msg.GetViewOnceMessageV2Extension().GetMessage()
		case msg.GetEphemeralMessage().GetMessage() != nil:
			msg = msg.GetEphemeralMessage().GetMessage()
		default:
			return msg
		}
	}
	return nil
}

// Media returns the downloadable part of msg, or nil for non-media content.
func Media(msg *waE2E.Message) whatsmeow.DownloadableMessage {
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage()
	}
	return nil
}

// ImageMessage builds an image message from an upload.
func ImageMessage(up whatsmeow.UploadResponse, mimetype, caption string) *waE2E.Message {
	return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       proto.String(caption),
		Mimetype:      proto.String(mimetype),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
}

// VideoMessage builds a video message from an upload.
func VideoMessage(up whatsmeow.UploadResponse, mimetype, caption string) *waE2E.Message {
	return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
		Caption:       proto.String(caption),
		Mimetype:      proto.String(mimetype),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
}

// AudioMessage builds an audio message from an upload.
func AudioMessage(up whatsmeow.UploadResponse, mimetype string) *waE2E.Message {
	return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
		Mimetype:      proto.String(mimetype),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
}
