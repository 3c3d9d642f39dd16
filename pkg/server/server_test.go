package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takutakahashi/notify-relay/pkg/broadcast"
	"github.com/takutakahashi/notify-relay/pkg/config"
	"github.com/takutakahashi/notify-relay/pkg/mediastore"
	"github.com/takutakahashi/notify-relay/pkg/registry"
	"github.com/takutakahashi/notify-relay/pkg/transport"
)

// fakeSender counts delivery attempts and always succeeds.
type fakeSender struct {
	mu   sync.Mutex
	sent int
}

func (f *fakeSender) Send(ctx context.Context, sub registry.Subscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

type fixedImages struct{}

func (fixedImages) RandomURL() string {
	return "https://picsum.example/seed/fixed/1200/700"
}

func newTestServer(t *testing.T) (*Server, *fakeSender, *registry.Registry, *mediastore.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.StaticDir = t.TempDir()

	reg := registry.New()
	media := mediastore.New(time.Minute)
	sender := &fakeSender{}
	dispatcher := broadcast.NewDispatcher(reg, media, sender, fixedImages{}, cfg.Media.MaxUploadBytes)
	vapid := transport.VAPIDKeys{PublicKey: "test-public-key", PrivateKey: "test-private-key"}

	return New(cfg, reg, media, dispatcher, vapid, false), sender, reg, media
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echoHeaderContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	s.GetEcho().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestSubscribe(t *testing.T) {
	s, _, reg, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/subscribe",
		`{"endpoint":"https://push.example/a","keys":{"p256dh":"pk","auth":"ak"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp SubscribeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.TotalSubscribers)
	assert.Equal(t, 1, reg.Size())

	// Re-registration of the same endpoint does not increase the count
	rec = doJSON(t, s, http.MethodPost, "/subscribe",
		`{"endpoint":"https://push.example/a","keys":{"p256dh":"pk2","auth":"ak2"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalSubscribers)
}

func TestSubscribeRejectsMissingEndpoint(t *testing.T) {
	s, _, reg, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/subscribe", `{"keys":{"p256dh":"pk","auth":"ak"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, reg.Size())
}

func TestNotify(t *testing.T) {
	s, sender, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/subscribe", `{"endpoint":"https://push.example/a"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/notify", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result broadcast.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.TotalSubscribers)
	assert.Empty(t, result.ImageURL)
	assert.Equal(t, 1, sender.sentCount())
}

func TestNotifyRejectsEmptyMessage(t *testing.T) {
	s, sender, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/subscribe", `{"endpoint":"https://push.example/a"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, body := range []string{`{}`, `{"message":""}`, `{"message":"   "}`} {
		rec = doJSON(t, s, http.MethodPost, "/notify", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
	assert.Equal(t, 0, sender.sentCount())
}

func TestNotifyRejectsInvalidImage(t *testing.T) {
	s, _, _, media := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/notify", `{"message":"hi","imageUrl":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, media.Len())
}

func TestNotifyMintsTokenForImage(t *testing.T) {
	s, _, _, media := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/notify",
		`{"message":"hi","imageUrl":"https://images.example/cat.jpg"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result broadcast.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.ImageURL)
	assert.Equal(t, 1, media.Len())

	// The minted URL points back at this host and resolves exactly once
	assert.Contains(t, result.ImageURL, "http://example.com/")
	path := strings.TrimPrefix(result.ImageURL, "http://example.com")

	req := httptest.NewRequest(http.MethodGet, path, nil)
	mediaRec := httptest.NewRecorder()
	s.GetEcho().ServeHTTP(mediaRec, req)
	assert.Equal(t, http.StatusFound, mediaRec.Code)
	assert.Equal(t, "https://images.example/cat.jpg", mediaRec.Header().Get("Location"))

	mediaRec = httptest.NewRecorder()
	s.GetEcho().ServeHTTP(mediaRec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, mediaRec.Code)
}

func TestMediaServesBinaryEntry(t *testing.T) {
	s, _, _, media := newTestServer(t)

	data := []byte{0x89, 0x50, 0x4e, 0x47}
	token, err := media.Create(mediastore.Entry{
		Kind:        mediastore.KindBinary,
		ContentType: "image/png",
		Data:        data,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/"+token+"/", nil)
	rec := httptest.NewRecorder()
	s.GetEcho().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echoHeaderContentType))
	assert.Equal(t, data, rec.Body.Bytes())
}

func TestMediaUnknownTokenFallsThrough(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/deadbeefdeadbeef/", nil)
	rec := httptest.NewRecorder()
	s.GetEcho().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/vapidPublicKey", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "test-public-key", resp["publicKey"])
}

func TestHealthz(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
