package plugins

import (
	"context"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"

	"whatsapp-bot/internal/message"
	"whatsapp-bot/internal/whatsapp"
)

// ViewOnce re-sends the media of a quoted view-once message as a normal one.
type ViewOnce struct{}

func (p *ViewOnce) Name() string        { return "viewonce" }
func (p *ViewOnce) Aliases() []string   { return []string{"vo", "once"} }
func (p *ViewOnce) Description() string { return "Download view once messages" }

func (p *ViewOnce) Execute(ctx context.Context, conn whatsapp.Conn, m *message.Message, _ []string) error {
	if m.Quoted == nil {
		return m.Reply(ctx, "Please reply to a view-once message to save it.")
	}

	q := m.Quoted
	var mediaType whatsmeow.MediaType
	switch q.Type {
	case message.KindImage:
		mediaType = whatsmeow.MediaImage
	case message.KindVideo:
		mediaType = whatsmeow.MediaVideo
	case message.KindAudio:
		mediaType = whatsmeow.MediaAudio
	default:
		return m.Reply(ctx, "The replied message does not contain any downloadable media.")
	}

	out, err := p.reupload(ctx, conn, q, mediaType)
	if err != nil {
		zap.L().Warn("view-once save failed", zap.Error(err))
		return m.Reply(ctx, "Failed to download media. Please try again.")
	}
	return m.SendContent(ctx, out)
}

func (p *ViewOnce) reupload(ctx context.Context, conn whatsapp.Conn, q *message.Quoted, mediaType whatsmeow.MediaType) (*waE2E.Message, error) {
	data, err := q.Download(ctx)
	if err != nil {
		return nil, err
	}
	up, err := conn.Upload(ctx, data, mediaType)
	if err != nil {
		return nil, err
	}

	switch mediaType {
	case whatsmeow.MediaImage:
		return whatsapp.ImageMessage(up, orDefault(q.Mimetype, "image/jpeg"), "View Once Image Saved"), nil
	case whatsmeow.MediaVideo:
		return whatsapp.VideoMessage(up, orDefault(q.Mimetype, "video/mp4"), "View Once Video Saved"), nil
	default:
		return whatsapp.AudioMessage(up, orDefault(q.Mimetype, "audio/ogg")), nil
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
