package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"whatsapp-bot/internal/session"
	"whatsapp-bot/internal/supervisor"
)

const Version = "1.0.0"

const (
	qrSize       = 256
	minPhoneLen  = 8
	pairTimeout  = 30 * time.Second
	qrDataPrefix = "data:image/png;base64,"
)

// Pairer issues phone-number pairing codes.
type Pairer interface {
	RequestPairingCode(ctx context.Context, phone string) (string, error)
}

// GatewayHandler serves the linking pages and their JSON endpoints.
type GatewayHandler struct {
	Session   session.View
	Pairer    Pairer
	PublicDir string

	now func() time.Time
}

func NewGatewayHandler(view session.View, pairer Pairer, publicDir string) *GatewayHandler {
	return &GatewayHandler{Session: view, Pairer: pairer, PublicDir: publicDir, now: time.Now}
}

// GetStatus reports the bot state, with the current QR rendered as a PNG
// data URL when one is pending.
func (h *GatewayHandler) GetStatus(c *gin.Context) {
	snap := h.Session.Snapshot()

	var latestQR any
	if snap.QR != "" {
		png, err := qrcode.Encode(snap.QR, qrcode.Medium, qrSize)
		if err != nil {
			zap.L().Error("failed to render QR code", zap.Error(err))
		} else {
			latestQR = qrDataPrefix + base64.StdEncoding.EncodeToString(png)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "online",
		"botStatus":         snap.Status,
		"prefix":            snap.Prefix,
		"time":              h.now().UTC().Format(time.RFC3339Nano),
		"hasQR":             snap.QR != "",
		"latestQR":          latestQR,
		"pairingCodesCount": snap.PendingPairingCodes,
		"version":           Version,
	})
}

// GetQRImage returns the pending QR as a PNG.
func (h *GatewayHandler) GetQRImage(c *gin.Context) {
	qr := h.Session.Snapshot().QR
	if qr == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No QR code available"})
		return
	}
	png, err := qrcode.Encode(qr, qrcode.Medium, qrSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR code"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

type pairRequest struct {
	Phone string `form:"phone" json:"phone"`
}

// RequestPairing issues a pairing code for the submitted phone number. Form
// and JSON bodies are both accepted.
func (h *GatewayHandler) RequestPairing(c *gin.Context) {
	var req pairRequest
	if err := c.ShouldBind(&req); err != nil {
		zap.L().Debug("unreadable pairing request", zap.Error(err))
	}

	if strings.TrimSpace(req.Phone) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone number is required"})
		return
	}
	phone := digitsOnly(req.Phone)
	if len(phone) < minPhoneLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	zap.L().Info("pairing code requested", zap.String("phone", phone), zap.String("status", string(h.Session.Status())))

	ctx, cancel := context.WithTimeout(c.Request.Context(), pairTimeout)
	defer cancel()
	code, err := h.Pairer.RequestPairingCode(ctx, phone)
	if errors.Is(err, supervisor.ErrNotConnecting) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf(`Bot not ready for pairing. Current status: %s. Please wait for "connecting" state.`, h.Session.Status()),
		})
		return
	}
	if err != nil {
		zap.L().Error("pairing code request failed", zap.String("phone", phone), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": friendlyPairError(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"phoneNumber": phone,
		"pairingCode": code,
	})
}

// friendlyPairError turns the common WhatsApp refusals into something a user
// can act on.
func friendlyPairError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "check phone number"):
		return "Please check your phone number and try again. Make sure it includes country code without +."
	case strings.Contains(msg, "not registered"):
		return "This phone number is not registered on WhatsApp."
	default:
		return msg
	}
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func (h *GatewayHandler) page(name string) gin.HandlerFunc {
	path := filepath.Join(h.PublicDir, name)
	return func(c *gin.Context) {
		c.File(path)
	}
}
