package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/localsend-session/api/models"
	"github.com/moyoez/localsend-session/types"
)

const (
	senderAddr = "192.168.1.20:40000"
	otherAddr  = "192.168.1.30:40000"
	localAddr  = "127.0.0.1:5555"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	registry *models.Registry
	handler  http.Handler
	dir      string
}

func newTestServer(t *testing.T, autoAccept bool) *testServer {
	t.Helper()
	dir := t.TempDir()
	registry := models.NewRegistry(models.RegistryOptions{DestDir: dir, AutoAccept: autoAccept})
	server := NewServer(ServerOptions{
		Config:   types.AppConfig{Protocol: "http", ShowToken: "secret"},
		Registry: registry,
	})
	t.Cleanup(func() { registry.Close() })
	return &testServer{registry: registry, handler: server.Handler(), dir: dir}
}

func (ts *testServer) do(method, target, remoteAddr string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) sendRequestAsync(t *testing.T, remoteAddr string, files ...types.FileMetadata) <-chan *httptest.ResponseRecorder {
	t.Helper()
	req := types.SendRequest{Info: types.DeviceInfo{Alias: "laptop"}, Files: map[string]types.FileMetadata{}}
	for _, f := range files {
		req.Files[f.ID] = f
	}
	body, err := sonic.Marshal(req)
	require.NoError(t, err)
	ch := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		ch <- ts.do(http.MethodPost, "/api/localsend/v1/send-request", remoteAddr, body)
	}()
	return ch
}

func (ts *testServer) waitForDecision(t *testing.T) types.ReceiveSessionSnapshot {
	t.Helper()
	var snap types.ReceiveSessionSnapshot
	require.Eventually(t, func() bool {
		s, ok := ts.registry.Current()
		snap = s
		return ok && s.Status == types.SessionStatusWaiting
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func receive(t *testing.T, ch <-chan *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	t.Helper()
	select {
	case w := <-ch:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("send-request did not return")
		return nil
	}
}

func tokens(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp types.MessageResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Message
}

func meta(id, name string, size int64) types.FileMetadata {
	return types.FileMetadata{ID: id, FileName: name, Size: size, FileType: types.FileTypeOther}
}

func TestAcceptRenameAndUpload(t *testing.T) {
	ts := newTestServer(t, false)
	ch := ts.sendRequestAsync(t, senderAddr, meta("A", "a.png", 5), meta("B", "b.txt", 3))
	snap := ts.waitForDecision(t)

	w := ts.do(http.MethodPost, "/api/self/v1/decide", localAddr, []byte(`{"files":{"A":"x.png"}}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = receive(t, ch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	accepted := tokens(t, w)
	require.Len(t, accepted, 1)
	require.NotEmpty(t, accepted["A"])

	w = ts.do(http.MethodPost, "/api/localsend/v1/send?fileId=A&token="+accepted["A"], senderAddr, []byte("hello"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data, err := os.ReadFile(filepath.Join(ts.dir, "x.png"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	final, ok := ts.registry.Recent(snap.SessionId)
	require.True(t, ok)
	assert.Equal(t, types.SessionStatusFinished, final.Status)
	assert.Equal(t, types.FileStatusFinished, final.Files["A"].Status)
	assert.Equal(t, types.FileStatusSkipped, final.Files["B"].Status)

	w = ts.do(http.MethodGet, "/api/self/v1/session/"+snap.SessionId, localAddr, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"finished"`)
}

func TestTokenReplayIsRejected(t *testing.T) {
	ts := newTestServer(t, true)
	w := receive(t, ts.sendRequestAsync(t, senderAddr, meta("A", "a.txt", 1), meta("B", "b.txt", 1)))
	require.Equal(t, http.StatusOK, w.Code)
	accepted := tokens(t, w)

	w = ts.do(http.MethodPost, "/api/localsend/v1/send?fileId=A&token="+accepted["A"], senderAddr, []byte("a"))
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodPost, "/api/localsend/v1/send?fileId=A&token="+accepted["A"], senderAddr, []byte("a"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Invalid token", message(t, w))

	snap, ok := ts.registry.Current()
	require.True(t, ok)
	assert.Equal(t, types.FileStatusFinished, snap.Files["A"].Status)
	assert.Equal(t, types.FileStatusQueued, snap.Files["B"].Status)
}

func TestDeclineResponses(t *testing.T) {
	ts := newTestServer(t, false)

	ch := ts.sendRequestAsync(t, senderAddr, meta("A", "a.txt", 1))
	ts.waitForDecision(t)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/self/v1/decide", localAddr, []byte(`{"files":{}}`)).Code)
	w := receive(t, ch)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	ch = ts.sendRequestAsync(t, senderAddr, meta("A", "a.txt", 1))
	ts.waitForDecision(t)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/self/v1/decide", localAddr, []byte(`{"files":null}`)).Code)
	w = receive(t, ch)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotEmpty(t, message(t, w))

	w = ts.do(http.MethodPost, "/api/self/v1/decide", localAddr, []byte(`{"files":null}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBusyWhileNegotiating(t *testing.T) {
	ts := newTestServer(t, false)
	ch := ts.sendRequestAsync(t, senderAddr, meta("A", "a.txt", 1))
	snap := ts.waitForDecision(t)

	w := receive(t, ts.sendRequestAsync(t, otherAddr, meta("Z", "z.txt", 1)))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Blocked by another session", message(t, w))

	for _, body := range []string{`{"info":{}}`, `not json`, `{"info":{"alias":"x"},"files":{}}`} {
		w = ts.do(http.MethodPost, "/api/localsend/v1/send-request", otherAddr, []byte(body))
		assert.Equal(t, http.StatusConflict, w.Code, body)
	}

	current, ok := ts.registry.Current()
	require.True(t, ok)
	assert.Equal(t, snap.SessionId, current.SessionId)

	require.NoError(t, ts.registry.Decide(nil))
	receive(t, ch)
}

func TestMalformedSendRequest(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(http.MethodPost, "/api/localsend/v1/send-request", senderAddr, []byte(`{"info":{}}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodPost, "/api/localsend/v1/send-request", senderAddr, []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadChecks(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(http.MethodPost, "/api/localsend/v1/send?fileId=A&token=t", senderAddr, []byte("a"))
	assert.Equal(t, http.StatusConflict, w.Code, "no session")

	accepted := tokens(t, receive(t, ts.sendRequestAsync(t, senderAddr, meta("A", "a.txt", 1))))

	w = ts.do(http.MethodPost, "/api/localsend/v1/send?fileId=A", senderAddr, []byte("a"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing parameters", message(t, w))

	w = ts.do(http.MethodPost, "/api/localsend/v1/send?fileId=A&token="+accepted["A"], otherAddr, []byte("a"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Invalid IP address", message(t, w))

	snap, ok := ts.registry.Current()
	require.True(t, ok)
	assert.True(t, snap.Files["A"].TokenIssued, "a rejected caller must not consume the token")
}

func TestCancel(t *testing.T) {
	ts := newTestServer(t, false)
	ch := ts.sendRequestAsync(t, senderAddr, meta("A", "a.txt", 1))
	ts.waitForDecision(t)

	w := ts.do(http.MethodPost, "/api/localsend/v1/cancel", otherAddr, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	_, ok := ts.registry.Current()
	assert.True(t, ok, "cancel from a stranger is ignored")

	w = ts.do(http.MethodPost, "/api/localsend/v1/cancel", senderAddr, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	_, ok = ts.registry.Current()
	assert.False(t, ok)

	w = receive(t, ch)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Session invalidated", message(t, w))
}

func TestInfo(t *testing.T) {
	models.SetSelfDevice(&types.SelfDevice{
		DeviceInfo:  types.DeviceInfo{Alias: "desk", DeviceModel: "linux", DeviceType: "desktop"},
		Fingerprint: "abc123",
	})
	t.Cleanup(func() { models.SetSelfDevice(nil) })
	ts := newTestServer(t, false)

	w := ts.do(http.MethodGet, "/api/localsend/v1/info?fingerprint=ABC123", otherAddr, nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = ts.do(http.MethodGet, "/api/localsend/v1/info?fingerprint=other", otherAddr, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info types.InfoResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, types.InfoResponse{Alias: "desk", DeviceModel: "linux", DeviceType: "desktop"}, info)
}

func TestShow(t *testing.T) {
	ts := newTestServer(t, false)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/localsend/v1/show?token=secret", otherAddr, nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/api/localsend/v1/show?token=nope", otherAddr, nil).Code)
}

func TestLocalAPIRejectsRemoteCallers(t *testing.T) {
	ts := newTestServer(t, false)
	for _, path := range []string{"/api/self/v1/session", "/api/self/v1/create-qr-code"} {
		w := ts.do(http.MethodGet, path, otherAddr, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
	w := ts.do(http.MethodPost, "/api/self/v1/decide", otherAddr, []byte(`{"files":null}`))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodGet, "/api/self/v1/session", localAddr, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutoAcceptToggle(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(http.MethodPost, "/api/self/v1/auto-accept?enabled=true", localAddr, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = receive(t, ts.sendRequestAsync(t, senderAddr, meta("A", "a.txt", 1)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"A"`))
}

func TestCloseAbortsStalledUpload(t *testing.T) {
	ts := newTestServer(t, true)
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)

	w := receive(t, ts.sendRequestAsync(t, "127.0.0.1:40000", meta("A", "big.bin", 1<<20)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := tokens(t, w)["A"]

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/localsend/v1/send?fileId=A&token="+token, pr)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
	}()
	_, err = pw.Write([]byte("partial"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, ok := ts.registry.Current()
		return ok && s.Files["A"].Status == types.FileStatusSending
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, ts.registry.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stalled upload kept the handler busy after close")
	}
	_, ok := ts.registry.Current()
	assert.False(t, ok)
}
