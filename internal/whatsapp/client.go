package whatsapp

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"whatsapp-bot/internal/database"
)

// DeviceDBName is the credential file holding the device identity and keys.
const DeviceDBName = "device.db"

// Conn is the part of a live connection that message handling needs.
type Conn interface {
	OwnID() types.JID
	SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) (types.MessageID, error)
	GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
	Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
	MarkRead(ctx context.Context, ids []types.MessageID, chat, sender types.JID) error
	SendPresence(ctx context.Context, presence types.Presence) error
}

type Options struct {
	AuthFolder     string
	PairClientName string
	Logger         waLog.Logger
}

// Client is one connection attempt backed by whatsmeow. Auto-reconnect is
// disabled; reconnecting is the supervisor's job.
type Client struct {
	wa        *whatsmeow.Client
	container *sqlstore.Container
	opts      Options
}

// Open loads (or creates) the device from the auth folder and returns an
// unconnected client.
func Open(ctx context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = waLog.Noop
	}
	if opts.PairClientName == "" {
		opts.PairClientName = "Chrome (Linux)"
	}
	if err := os.MkdirAll(opts.AuthFolder, 0o700); err != nil {
		return nil, errors.Wrap(err, "create auth folder")
	}

	dsn := database.DeviceDSN(filepath.Join(opts.AuthFolder, DeviceDBName))
	container, err := sqlstore.New(ctx, database.DeviceDriver, dsn, opts.Logger.Sub("Database"))
	if err != nil {
		return nil, errors.Wrap(err, "open device store")
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, errors.Wrap(err, "load device")
	}

	wa := whatsmeow.NewClient(device, opts.Logger.Sub("Client"))
	wa.EnableAutoReconnect = false

	return &Client{wa: wa, container: container, opts: opts}, nil
}

func (c *Client) AddEventHandler(handler func(evt any)) {
	c.wa.AddEventHandler(handler)
}

func (c *Client) Connect() error {
	return c.wa.Connect()
}

func (c *Client) Disconnect() {
	c.wa.Disconnect()
}

// Close releases the device database. The client must be disconnected first.
func (c *Client) Close() error {
	return c.container.Close()
}

func (c *Client) IsLoggedIn() bool {
	return c.wa.Store.ID != nil
}

func (c *Client) OwnID() types.JID {
	if c.wa.Store.ID == nil {
		return types.EmptyJID
	}
	return c.wa.Store.ID.ToNonAD()
}

// SaveCredentials flushes the in-memory device state to the device database.
func (c *Client) SaveCredentials(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		return nil
	}
	return c.wa.Store.Save(ctx)
}

// PairPhone requests a phone-number pairing code for an unregistered device.
func (c *Client) PairPhone(ctx context.Context, phone string) (string, error) {
	return c.wa.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, c.opts.PairClientName)
}

func (c *Client) SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) (types.MessageID, error) {
	resp, err := c.wa.SendMessage(ctx, to, msg)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error) {
	return c.wa.GetGroupInfo(ctx, jid)
}

func (c *Client) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	return c.wa.Download(ctx, msg)
}

func (c *Client) Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return c.wa.Upload(ctx, data, mediaType)
}

func (c *Client) MarkRead(ctx context.Context, ids []types.MessageID, chat, sender types.JID) error {
	return c.wa.MarkRead(ctx, ids, time.Now(), chat, sender)
}

func (c *Client) SendPresence(ctx context.Context, presence types.Presence) error {
	return c.wa.SendPresence(ctx, presence)
}
