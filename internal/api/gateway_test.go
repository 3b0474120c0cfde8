package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"whatsapp-bot/internal/session"
	"whatsapp-bot/internal/supervisor"
)

type fakePairer struct {
	sess   *session.Session
	err    error
	phones []string
}

func (p *fakePairer) RequestPairingCode(_ context.Context, phone string) (string, error) {
	if p.sess.Status() != session.StatusConnecting {
		return "", supervisor.ErrNotConnecting
	}
	if p.err != nil {
		return "", p.err
	}
	p.phones = append(p.phones, phone)
	return "WXYZ-1234", nil
}

func setup(t *testing.T) (*gin.Engine, *session.Session, *fakePairer, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	sess := session.New(".", nil)
	pairer := &fakePairer{sess: sess}
	return NewRouter(NewGatewayHandler(sess, pairer, dir), nil), sess, pairer, dir
}

func do(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func pairForm(phone string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/pair", strings.NewReader(url.Values{"phone": {phone}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestStatus(t *testing.T) {
	r, sess, _, _ := setup(t)

	w, body := do(r, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	if body["status"] != "online" || body["botStatus"] != "disconnected" || body["prefix"] != "." {
		t.Errorf("unexpected body %v", body)
	}
	if body["hasQR"] != false || body["latestQR"] != nil || body["version"] != Version {
		t.Errorf("unexpected body %v", body)
	}

	sess.SetStatus(session.StatusConnecting)
	sess.SetQR("2@abc,def,ghi")
	sess.RecordPairingCode("15550001111", "CODE")
	_, body = do(r, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if body["hasQR"] != true || !strings.HasPrefix(body["latestQR"].(string), qrDataPrefix) {
		t.Errorf("expected QR data URL, got %v", body["latestQR"])
	}
	if body["botStatus"] != "connecting" || body["pairingCodesCount"] != float64(1) {
		t.Errorf("unexpected body %v", body)
	}
}

func TestQRImage(t *testing.T) {
	r, sess, _, _ := setup(t)

	w, _ := do(r, httptest.NewRequest(http.MethodGet, "/api/qr.png", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without QR, got %d", w.Code)
	}

	sess.SetQR("2@abc")
	w, _ = do(r, httptest.NewRequest(http.MethodGet, "/api/qr.png", nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected response %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(w.Body.String(), "\x89PNG") {
		t.Error("body is not a PNG")
	}
}

func TestPairValidation(t *testing.T) {
	r, sess, pairer, _ := setup(t)

	tests := []struct {
		name  string
		phone string
		code  int
		err   string
	}{
		{"missing", "", http.StatusBadRequest, "Phone number is required"},
		{"too short", "+1 (555)", http.StatusBadRequest, "Invalid phone number"},
		{"not connecting", "+1 555 000 1111", http.StatusBadRequest,
			`Bot not ready for pairing. Current status: disconnected. Please wait for "connecting" state.`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(r, pairForm(tt.phone))
			if w.Code != tt.code || body["error"] != tt.err {
				t.Errorf("got %d %v", w.Code, body)
			}
		})
	}

	if sess.Status() != session.StatusDisconnected || len(pairer.phones) != 0 {
		t.Error("rejected requests must not reach the pairer")
	}
}

func TestPairIssuesCode(t *testing.T) {
	r, sess, pairer, _ := setup(t)
	sess.SetStatus(session.StatusConnecting)

	w, body := do(r, pairForm("+1 555-000-1111"))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", w.Code, body)
	}
	if body["success"] != true || body["phoneNumber"] != "15550001111" || body["pairingCode"] != "WXYZ-1234" {
		t.Errorf("unexpected body %v", body)
	}
	if len(pairer.phones) != 1 || pairer.phones[0] != "15550001111" {
		t.Errorf("pairer got %v", pairer.phones)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/pair", strings.NewReader(`{"phone":"4915112345678"}`))
	req.Header.Set("Content-Type", "application/json")
	if w, body := do(r, req); w.Code != http.StatusOK || body["phoneNumber"] != "4915112345678" {
		t.Errorf("json body not accepted: %d %v", w.Code, body)
	}
}

func TestPairErrorsAreMapped(t *testing.T) {
	r, sess, pairer, _ := setup(t)
	sess.SetStatus(session.StatusConnecting)

	pairer.err = errors.New("server returned error: not registered")
	w, body := do(r, pairForm("15550001111"))
	if w.Code != http.StatusInternalServerError || body["error"] != "This phone number is not registered on WhatsApp." {
		t.Errorf("got %d %v", w.Code, body)
	}

	pairer.err = errors.New("rate limited")
	if _, body := do(r, pairForm("15550001111")); body["error"] != "rate limited" {
		t.Errorf("unmapped errors pass through, got %v", body)
	}
}

func TestPagesAndCORS(t *testing.T) {
	r, _, _, dir := setup(t)
	if err := os.WriteFile(filepath.Join(dir, "pair.html"), []byte("<h1>pair</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, _ := do(r, httptest.NewRequest(http.MethodGet, "/pair", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<h1>pair</h1>") {
		t.Errorf("page not served: %d %q", w.Code, w.Body.String())
	}

	w, _ = do(r, httptest.NewRequest(http.MethodOptions, "/api/pair", nil))
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected preflight %d %v", w.Code, w.Header())
	}
}
