// Package whatsapptest provides an in-memory whatsapp.Conn for tests.
package whatsapptest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
)

type Sent struct {
	To      types.JID
	Message *waE2E.Message
}

type Read struct {
	IDs    []types.MessageID
	Chat   types.JID
	Sender types.JID
}

// Conn records everything sent through it.
type Conn struct {
	mu sync.Mutex

	Own       types.JID
	Groups    map[types.JID]*types.GroupInfo
	Media     []byte
	SendErr   error
	GroupErr  error
	UploadErr error

	sent      []Sent
	reads     []Read
	presences []types.Presence
	uploads   int
	nextID    int
}

func NewConn(own types.JID) *Conn {
	return &Conn{Own: own, Groups: make(map[types.JID]*types.GroupInfo)}
}

func (c *Conn) OwnID() types.JID {
	return c.Own
}

func (c *Conn) SendMessage(_ context.Context, to types.JID, msg *waE2E.Message) (types.MessageID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.sent = append(c.sent, Sent{To: to, Message: msg})
	c.nextID++
	return types.MessageID(fmt.Sprintf("SENT%d", c.nextID)), nil
}

func (c *Conn) GetGroupInfo(_ context.Context, jid types.JID) (*types.GroupInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GroupErr != nil {
		return nil, c.GroupErr
	}
	info, ok := c.Groups[jid]
	if !ok {
		return nil, errors.New("group not found")
	}
	return info, nil
}

func (c *Conn) Download(context.Context, whatsmeow.DownloadableMessage) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Media, nil
}

func (c *Conn) Upload(_ context.Context, data []byte, _ whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UploadErr != nil {
		return whatsmeow.UploadResponse{}, c.UploadErr
	}
	c.uploads++
	return whatsmeow.UploadResponse{URL: "https://mmg.example/upload", DirectPath: "/v/upload", FileLength: uint64(len(data))}, nil
}

func (c *Conn) MarkRead(_ context.Context, ids []types.MessageID, chat, sender types.JID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads = append(c.reads, Read{IDs: ids, Chat: chat, Sender: sender})
	return nil
}

func (c *Conn) SendPresence(_ context.Context, presence types.Presence) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presences = append(c.presences, presence)
	return nil
}

func (c *Conn) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

func (c *Conn) Reads() []Read {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Read(nil), c.reads...)
}

func (c *Conn) Presences() []types.Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Presence(nil), c.presences...)
}

func (c *Conn) Uploads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploads
}

// TextOf returns the plain text body of a sent message.
func TextOf(msg *waE2E.Message) string {
	if msg.GetConversation() != "" {
		return msg.GetConversation()
	}
	return msg.GetExtendedTextMessage().GetText()
}
