package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/lehigh-university-libraries/imagechat/internal/conversation"
	"github.com/lehigh-university-libraries/imagechat/internal/images"
	"github.com/lehigh-university-libraries/imagechat/internal/imaging"
	"github.com/lehigh-university-libraries/imagechat/internal/models"
	"github.com/lehigh-university-libraries/imagechat/internal/providers"
	"github.com/lehigh-university-libraries/imagechat/internal/storage"
	"github.com/lehigh-university-libraries/imagechat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	model *testutil.FakeModel
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithOptions(t, Options{})
}

func newTestServerWithOptions(t *testing.T, opts Options) *testServer {
	t.Helper()
	model := &testutil.FakeModel{Reply: "It's a red square."}
	decoder := imaging.NewDecoder(imaging.DefaultConfig())
	sessions := storage.New(func() *conversation.Store {
		return conversation.New(decoder, model, nil)
	})

	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>chat</html>"), 0644))

	opts.Provider, opts.Model, opts.StaticDir = "fake", "fake-1", staticDir
	h := New(sessions, images.NewFetcher(), opts)
	mux := http.NewServeMux()
	h.Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, model: model}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	resp := s.do(t, "POST", "/api/sessions", nil, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var session models.ChatSession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.Equal(t, "fake", session.Provider)
	assert.Empty(t, session.Messages)
	return session.ID
}

func (s *testServer) upload(t *testing.T, sessionID string, files map[string][]byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return s.do(t, "POST", "/api/sessions/"+sessionID+"/images", &buf, w.FormDataContentType())
}

func (s *testServer) sendMessage(t *testing.T, sessionID, text string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"text": text})
	return s.do(t, "POST", "/api/sessions/"+sessionID+"/messages", bytes.NewReader(body), "application/json")
}

func (s *testServer) session(t *testing.T, sessionID string) models.ChatSession {
	t.Helper()
	resp := s.do(t, "GET", "/api/sessions/"+sessionID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session models.ChatSession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	return session
}

func TestChatFlow(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	resp := srv.upload(t, id, map[string][]byte{"square.png": testutil.PNG(8, 8)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var uploaded uploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	assert.Equal(t, "square.png", uploaded.ActiveImage)
	require.Len(t, uploaded.Images, 1)
	assert.Equal(t, "image/jpeg", uploaded.Images[0].MIMEType)

	resp = srv.sendMessage(t, id, "  what is this?  ")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var exchange exchangeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&exchange))
	assert.Equal(t, "what is this?", exchange.User.Content)
	assert.Equal(t, "It's a red square.", exchange.Assistant.Content)

	calls := srv.model.Calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Image)

	session := srv.session(t, id)
	assert.Len(t, session.Messages, 2)
	assert.Equal(t, "square.png", session.ActiveImage)

	resp = srv.do(t, "GET", "/api/sessions/"+id+"/images/square.png", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
}

func TestUpload_MultipleFilesAndSelect(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	resp := srv.upload(t, id, map[string][]byte{"a.png": testutil.PNG(2, 2)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = srv.upload(t, id, map[string][]byte{"b.jpg": testutil.JPEG(2, 2)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "b.jpg", srv.session(t, id).ActiveImage)

	resp = srv.do(t, "POST", "/api/sessions/"+id+"/images/a.png/select", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a.png", srv.session(t, id).ActiveImage)

	resp = srv.do(t, "POST", "/api/sessions/"+id+"/images/missing.png/select", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "a.png", srv.session(t, id).ActiveImage)

	resp = srv.do(t, "DELETE", "/api/sessions/"+id+"/images/a.png", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	session := srv.session(t, id)
	assert.Equal(t, "", session.ActiveImage)
	assert.Len(t, session.Images, 1)

	resp = srv.do(t, "DELETE", "/api/sessions/"+id+"/images", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, srv.session(t, id).Images)

	resp = srv.do(t, "POST", "/api/sessions/"+id+"/images/b.jpg/select", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpload_Errors(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	resp := srv.upload(t, id, map[string][]byte{"notes.txt": []byte("hello")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, srv.session(t, id).Images)

	resp = srv.upload(t, id, map[string][]byte{"big.png": bytes.Repeat([]byte{0}, images.MaxImageBytes+1)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.upload(t, "no-such-session", map[string][]byte{"a.png": testutil.PNG(2, 2)})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, "POST", "/api/sessions/"+id+"/images", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_BodyLimits(t *testing.T) {
	srv := newTestServerWithOptions(t, Options{MaxUploadBytes: 64 << 10})
	id := srv.createSession(t)

	resp := srv.upload(t, id, map[string][]byte{"huge.png": bytes.Repeat([]byte{0}, 100<<10)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Empty(t, srv.session(t, id).Images)

	files := make(map[string][]byte, MaxFilesPerBatch+1)
	for i := 0; i <= MaxFilesPerBatch; i++ {
		files[fmt.Sprintf("img_%d.png", i)] = testutil.PNG(1, 1)
	}
	resp = srv.upload(t, id, files)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, srv.session(t, id).Images)

	resp = srv.upload(t, id, map[string][]byte{"ok.png": testutil.PNG(2, 2)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNew_DefaultUploadLimit(t *testing.T) {
	h := New(storage.New(nil), images.NewFetcher(), Options{})
	assert.Equal(t, int64(DefaultMaxUploadBytes), h.maxUpload)
	assert.Greater(t, h.maxUpload, int64(images.MaxImageBytes*MaxFilesPerBatch))
}

func TestUpload_PartialBatch(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	resp := srv.upload(t, id, map[string][]byte{
		"good.png": testutil.PNG(2, 2),
		"bad.png":  []byte("nope"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded uploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	assert.Len(t, uploaded.Images, 1)
	assert.Len(t, uploaded.Errors, 1)
	assert.Equal(t, "good.png", uploaded.ActiveImage)
}

func TestUpload_FromURL(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(testutil.PNG(4, 4))
	}))
	defer imgSrv.Close()

	srv := newTestServer(t)
	id := srv.createSession(t)

	body, _ := json.Marshal(map[string]string{"image_url": imgSrv.URL + "/remote.png"})
	resp := srv.do(t, "POST", "/api/sessions/"+id+"/images", bytes.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "remote.png", srv.session(t, id).ActiveImage)
}

func TestMessage_Errors(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	resp := srv.sendMessage(t, id, "   ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, srv.session(t, id).Messages)

	resp = srv.sendMessage(t, "no-such-session", "hello")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, "POST", "/api/sessions/"+id+"/messages", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessage_ModelFailuresDegrade(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	srv.model.SetErr(providers.Quota("fake", errors.New("429")))
	resp := srv.sendMessage(t, id, "hello")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var exchange exchangeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&exchange))
	assert.Equal(t, conversation.OfflineReply("hello"), exchange.Assistant.Content)

	srv.model.SetErr(providers.Failure("fake", errors.New("boom")))
	resp = srv.sendMessage(t, id, "again")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&exchange))
	assert.True(t, strings.HasPrefix(exchange.Assistant.Content, "⚠️ Error: "))

	assert.Len(t, srv.session(t, id).Messages, 4)
}

func TestTranscript(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)
	require.Equal(t, http.StatusOK, srv.sendMessage(t, id, "hello").StatusCode)

	resp := srv.do(t, "GET", "/api/sessions/"+id+"/transcript?format=yaml", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "sessionid: "+id)

	resp = srv.do(t, "GET", "/api/sessions/"+id+"/transcript?format=csv", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.do(t, "GET", "/api/sessions/missing/transcript", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessions_ListAndDelete(t *testing.T) {
	srv := newTestServer(t)
	a := srv.createSession(t)
	srv.createSession(t)

	resp := srv.do(t, "GET", "/api/sessions", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []models.ChatSession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 2)

	assert.Equal(t, http.StatusNoContent, srv.do(t, "DELETE", "/api/sessions/"+a, nil, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, srv.do(t, "DELETE", "/api/sessions/"+a, nil, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, srv.do(t, "GET", "/api/sessions/"+a, nil, "").StatusCode)
}

func TestListSessions_SkipsConcurrentlyDeleted(t *testing.T) {
	sessions := storage.New(func() *conversation.Store {
		return conversation.New(imaging.NewDecoder(imaging.DefaultConfig()), &testutil.FakeModel{}, nil)
	})
	h := New(sessions, images.NewFetcher(), Options{})

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = sessions.Create().ID
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, id := range ids {
			sessions.Delete(id)
		}
	}()

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		h.HandleListSessions(rec, httptest.NewRequest("GET", "/api/sessions", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var list []*models.ChatSession
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
		for _, s := range list {
			require.NotNil(t, s)
			assert.NotEmpty(t, s.ID)
		}
	}
	wg.Wait()

	rec := httptest.NewRecorder()
	h.HandleListSessions(rec, httptest.NewRequest("GET", "/api/sessions", nil))
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestStaticAndHealthcheck(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, "GET", "/", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "chat")

	resp = srv.do(t, "GET", "/healthcheck", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))
}
