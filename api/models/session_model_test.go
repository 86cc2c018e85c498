package models

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/localsend-session/types"
)

const senderIP = "192.168.1.20"

type recorder struct {
	mu     sync.Mutex
	events []*types.Notification
}

func (r *recorder) Notify(n *types.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeGallery struct {
	saved []string
	err   error
}

func (g *fakeGallery) SaveToGallery(_ context.Context, path string, _ types.FileMetadata) error {
	if g.err != nil {
		return g.err
	}
	g.saved = append(g.saved, path)
	return os.Remove(path)
}

func batch(files ...types.FileMetadata) types.SendRequest {
	req := types.SendRequest{
		Info:  types.DeviceInfo{Alias: "phone", DeviceModel: "Pixel", DeviceType: "mobile"},
		Files: map[string]types.FileMetadata{},
	}
	for _, f := range files {
		req.Files[f.ID] = f
	}
	return req
}

func fileMeta(id, name string, size int64) types.FileMetadata {
	return types.FileMetadata{ID: id, FileName: name, Size: size, FileType: types.FileTypeOther}
}

type negotiation struct {
	resp types.SendRequestResponse
	err  error
}

// negotiateAsync starts a negotiation and waits until the session is waiting for a decision.
func negotiateAsync(t *testing.T, r *Registry, req types.SendRequest) (<-chan negotiation, types.ReceiveSessionSnapshot) {
	t.Helper()
	ch := make(chan negotiation, 1)
	go func() {
		resp, err := r.Negotiate(context.Background(), req, senderIP)
		ch <- negotiation{resp, err}
	}()
	var snap types.ReceiveSessionSnapshot
	require.Eventually(t, func() bool {
		s, ok := r.Current()
		snap = s
		return ok && s.Status == types.SessionStatusWaiting
	}, 2*time.Second, 5*time.Millisecond)
	return ch, snap
}

func wait(t *testing.T, ch <-chan negotiation) negotiation {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("negotiation did not return")
		return negotiation{}
	}
}

func TestNegotiateRejectsMalformedBatch(t *testing.T) {
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir()})
	tests := []types.SendRequest{
		batch(),
		batch(fileMeta("a", "", 1)),
		batch(fileMeta("a", "a.txt", -1)),
		{Files: map[string]types.FileMetadata{"a": fileMeta("b", "a.txt", 1)}},
	}
	for _, req := range tests {
		_, err := r.Negotiate(context.Background(), req, senderIP)
		assert.ErrorIs(t, err, types.ErrInvalidRequest)
	}
	_, ok := r.Current()
	assert.False(t, ok)
}

func TestSecondNegotiationIsBusy(t *testing.T) {
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir()})
	first, snap := negotiateAsync(t, r, batch(fileMeta("a", "a.txt", 1)))

	_, err := r.Negotiate(context.Background(), batch(fileMeta("b", "b.txt", 1)), "192.168.1.30")
	assert.ErrorIs(t, err, types.ErrBusy)
	// busy is reported before the batch is validated
	_, err = r.Negotiate(context.Background(), types.SendRequest{}, "192.168.1.30")
	assert.ErrorIs(t, err, types.ErrBusy)
	_, err = r.Negotiate(context.Background(), batch(fileMeta("c", "", -1)), "192.168.1.30")
	assert.ErrorIs(t, err, types.ErrBusy)

	current, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, snap.SessionId, current.SessionId)
	assert.Equal(t, senderIP, current.Sender.IP)
	assert.Contains(t, current.Files, "a")

	require.NoError(t, r.Decide(nil))
	assert.ErrorIs(t, wait(t, first).err, types.ErrDeclined)
}

func TestDecisionSelectsAndRenames(t *testing.T) {
	obs := &recorder{}
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir(), Observer: obs})
	ch, _ := negotiateAsync(t, r, batch(fileMeta("A", "a.png", 5), fileMeta("B", "b.txt", 3)))

	require.NoError(t, r.Decide(map[string]string{"A": "x.png"}))
	n := wait(t, ch)
	require.NoError(t, n.err)
	require.Len(t, n.resp, 1)
	assert.NotEmpty(t, n.resp["A"])

	snap, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, types.SessionStatusSending, snap.Status)
	assert.Equal(t, "x.png", snap.Files["A"].DesiredName)
	assert.True(t, snap.Files["A"].TokenIssued)
	assert.Equal(t, types.FileStatusQueued, snap.Files["A"].Status)
	assert.Equal(t, types.FileStatusSkipped, snap.Files["B"].Status)
	assert.Contains(t, obs.kinds(), types.NotifyTypeSessionNegotiated)
}

func TestDecideOnlyFirstCounts(t *testing.T) {
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir()})
	ch, _ := negotiateAsync(t, r, batch(fileMeta("A", "a.txt", 1)))

	require.NoError(t, r.Decide(map[string]string{"A": ""}))
	err := r.Decide(nil)
	if err != nil {
		assert.ErrorIs(t, err, types.ErrNoSession)
	}

	n := wait(t, ch)
	require.NoError(t, n.err)
	assert.Contains(t, n.resp, "A")
	snap, _ := r.Current()
	assert.Equal(t, "a.txt", snap.Files["A"].DesiredName, "empty name falls back to the announced one")
}

func TestDeclineVariants(t *testing.T) {
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir()})

	ch, snap := negotiateAsync(t, r, batch(fileMeta("A", "a.txt", 1)))
	require.NoError(t, r.Decide(nil))
	n := wait(t, ch)
	assert.ErrorIs(t, n.err, types.ErrDeclined)
	assert.Nil(t, n.resp)
	_, ok := r.Current()
	assert.False(t, ok)
	recent, ok := r.Recent(snap.SessionId)
	require.True(t, ok)
	assert.Equal(t, types.SessionStatusDeclined, recent.Status)

	ch, _ = negotiateAsync(t, r, batch(fileMeta("A", "a.txt", 1)))
	require.NoError(t, r.Decide(map[string]string{}))
	n = wait(t, ch)
	require.NoError(t, n.err)
	assert.NotNil(t, n.resp)
	assert.Empty(t, n.resp)
	_, ok = r.Current()
	assert.False(t, ok)
}

func TestDecideWithoutSession(t *testing.T) {
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir()})
	assert.ErrorIs(t, r.Decide(nil), types.ErrNoSession)
}

func TestDecisionTimeoutDeclines(t *testing.T) {
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir(), DecisionTimeout: 20 * time.Millisecond})
	_, err := r.Negotiate(context.Background(), batch(fileMeta("A", "a.txt", 1)), senderIP)
	assert.ErrorIs(t, err, types.ErrDeclined)
}

func TestCloseWhileWaitingInvalidatesNegotiation(t *testing.T) {
	obs := &recorder{}
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir(), Observer: obs})
	ch, _ := negotiateAsync(t, r, batch(fileMeta("A", "a.txt", 1)))

	assert.True(t, r.Close())
	assert.ErrorIs(t, wait(t, ch).err, types.ErrInvalidState)
	assert.False(t, r.Close())
	assert.Contains(t, obs.kinds(), types.NotifyTypeSessionCanceled)
}

func TestNegotiationEndsWhenSenderLeaves(t *testing.T) {
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() {
		_, err := r.Negotiate(ctx, batch(fileMeta("A", "a.txt", 1)), senderIP)
		ch <- err
	}()
	require.Eventually(t, func() bool { _, ok := r.Current(); return ok }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-ch, context.Canceled)
	_, ok := r.Current()
	assert.False(t, ok)
}

func autoAccepted(t *testing.T, r *Registry, files ...types.FileMetadata) types.SendRequestResponse {
	t.Helper()
	resp, err := r.Negotiate(context.Background(), batch(files...), senderIP)
	require.NoError(t, err)
	return resp
}

func TestBeginUploadChecks(t *testing.T) {
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir(), AutoAccept: true})

	_, err := r.BeginUpload("A", "x", senderIP)
	assert.ErrorIs(t, err, types.ErrWrongState)

	resp := autoAccepted(t, r, fileMeta("A", "a.txt", 1), fileMeta("B", "b.txt", 1))
	require.Len(t, resp, 2)

	_, err = r.BeginUpload("A", resp["A"], "10.0.0.66")
	assert.ErrorIs(t, err, types.ErrWrongIP)
	_, err = r.BeginUpload("A", resp["B"], senderIP)
	assert.ErrorIs(t, err, types.ErrInvalidToken)
	_, err = r.BeginUpload("C", resp["A"], senderIP)
	assert.ErrorIs(t, err, types.ErrInvalidToken)

	sessionID, err := r.BeginUpload("A", resp["A"], senderIP)
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
	_, err = r.BeginUpload("A", resp["A"], senderIP)
	assert.ErrorIs(t, err, types.ErrInvalidToken, "token is single use")

	snap, _ := r.Current()
	assert.Equal(t, types.FileStatusSending, snap.Files["A"].Status)
	assert.False(t, snap.Files["A"].TokenIssued)
	assert.True(t, snap.Files["B"].TokenIssued)
	require.NotNil(t, snap.StartedAt)
}

func TestStreamFileBodyFinishesSession(t *testing.T) {
	dir := t.TempDir()
	obs := &recorder{}
	r := NewRegistry(RegistryOptions{DestDir: dir, AutoAccept: true, Observer: obs})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("old"), 0o644))

	resp := autoAccepted(t, r, fileMeta("A", "a.txt", 5))
	sessionID, err := r.BeginUpload("A", resp["A"], senderIP)
	require.NoError(t, err)

	var progress []int64
	err = r.StreamFileBody(context.Background(), sessionID, "A", io.NopCloser(strings.NewReader("hello")), 5, func(_ string, written int64) {
		progress = append(progress, written)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), progress[len(progress)-1])

	data, err := os.ReadFile(filepath.Join(dir, "a-2.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, ok := r.Current()
	assert.False(t, ok)
	final, ok := r.Recent(sessionID)
	require.True(t, ok)
	assert.Equal(t, types.SessionStatusFinished, final.Status)
	assert.Equal(t, filepath.Join(dir, "a-2.txt"), final.Files["A"].Path)
	require.NotNil(t, final.EndedAt)

	events := obs.kinds()
	assert.Contains(t, events, types.NotifyTypeFileProgress)
	assert.Contains(t, events, types.NotifyTypeFileFinished)
	assert.Equal(t, types.NotifyTypeSessionTerminal, events[len(events)-1])
}

func TestShortBodyFailsFileAndKeepsPartial(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(RegistryOptions{DestDir: dir, AutoAccept: true})
	resp := autoAccepted(t, r, fileMeta("A", "a.bin", 10), fileMeta("B", "b.bin", 2))

	sessionID, err := r.BeginUpload("A", resp["A"], senderIP)
	require.NoError(t, err)
	err = r.StreamFileBody(context.Background(), sessionID, "A", io.NopCloser(strings.NewReader("abc")), 10, nil)
	assert.ErrorIs(t, err, types.ErrIOFailure)

	snap, ok := r.Current()
	require.True(t, ok, "a failed file must not end the session while others are pending")
	assert.Equal(t, types.FileStatusFailed, snap.Files["A"].Status)
	assert.NotEmpty(t, snap.Files["A"].ErrorMessage)
	data, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	_, err = r.BeginUpload("A", resp["A"], senderIP)
	assert.ErrorIs(t, err, types.ErrInvalidToken)

	_, err = r.BeginUpload("B", resp["B"], senderIP)
	require.NoError(t, err)
	require.NoError(t, r.StreamFileBody(context.Background(), sessionID, "B", io.NopCloser(strings.NewReader("ok")), 2, nil))

	final, ok := r.Recent(sessionID)
	require.True(t, ok)
	assert.Equal(t, types.SessionStatusFinishedWithErrors, final.Status)
	assert.Equal(t, types.FileStatusFailed, final.Files["A"].Status)
	assert.Equal(t, types.FileStatusFinished, final.Files["B"].Status)
}

func TestFinishedWithErrorsIffAnyFailed(t *testing.T) {
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir(), AutoAccept: true})
	resp := autoAccepted(t, r, fileMeta("A", "a.bin", 1))
	sessionID, err := r.BeginUpload("A", resp["A"], senderIP)
	require.NoError(t, err)
	require.NoError(t, r.StreamFileBody(context.Background(), sessionID, "A", io.NopCloser(strings.NewReader("x")), 1, nil))
	final, _ := r.Recent(sessionID)
	assert.Equal(t, types.SessionStatusFinished, final.Status)
	for _, f := range final.Files {
		assert.True(t, f.Status.Terminal())
	}
}

func TestCancelBySender(t *testing.T) {
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir(), AutoAccept: true})
	resp := autoAccepted(t, r, fileMeta("A", "a.txt", 1))
	snap, _ := r.Current()

	assert.False(t, r.CancelBySender("10.0.0.66"))
	_, ok := r.Current()
	assert.True(t, ok)

	assert.True(t, r.CancelBySender(senderIP))
	_, ok = r.Current()
	assert.False(t, ok)
	final, ok := r.Recent(snap.SessionId)
	require.True(t, ok)
	assert.Equal(t, types.SessionStatusCanceledBySender, final.Status)

	_, err := r.BeginUpload("A", resp["A"], senderIP)
	assert.ErrorIs(t, err, types.ErrWrongState)
}

func TestDestroyAbortsStalledStream(t *testing.T) {
	tests := []struct {
		name    string
		destroy func(r *Registry) bool
	}{
		{"sender cancel", func(r *Registry) bool { return r.CancelBySender(senderIP) }},
		{"receiver close", func(r *Registry) bool { return r.Close() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(RegistryOptions{DestDir: t.TempDir(), AutoAccept: true})
			resp := autoAccepted(t, r, fileMeta("A", "a.bin", 1<<20))
			sessionID, err := r.BeginUpload("A", resp["A"], senderIP)
			require.NoError(t, err)

			// The writer stays open: the only way out of the pending read is the body being closed.
			pr, pw := io.Pipe()
			t.Cleanup(func() { _ = pw.Close() })
			done := make(chan error, 1)
			go func() {
				done <- r.StreamFileBody(context.Background(), sessionID, "A", pr, 1<<20, nil)
			}()
			_, err = pw.Write([]byte("partial"))
			require.NoError(t, err)

			require.True(t, tt.destroy(r))

			select {
			case err := <-done:
				assert.True(t, errors.Is(err, types.ErrIOFailure) || errors.Is(err, types.ErrInvalidState), "got %v", err)
			case <-time.After(2 * time.Second):
				t.Fatal("stalled stream was not aborted")
			}
			_, ok := r.Current()
			assert.False(t, ok)
		})
	}
}

func TestMediaSaverTakesImages(t *testing.T) {
	gallery := &fakeGallery{}
	r := NewRegistry(RegistryOptions{DestDir: t.TempDir(), AutoAccept: true, MediaSaver: gallery})
	img := types.FileMetadata{ID: "I", FileName: "p.png", Size: 3, FileType: types.FileTypeImage}
	doc := fileMeta("D", "d.txt", 2)
	resp := autoAccepted(t, r, img, doc)

	sessionID, err := r.BeginUpload("I", resp["I"], senderIP)
	require.NoError(t, err)
	require.NoError(t, r.StreamFileBody(context.Background(), sessionID, "I", io.NopCloser(strings.NewReader("png")), 3, nil))
	_, err = r.BeginUpload("D", resp["D"], senderIP)
	require.NoError(t, err)
	require.NoError(t, r.StreamFileBody(context.Background(), sessionID, "D", io.NopCloser(strings.NewReader("ok")), 2, nil))

	final, ok := r.Recent(sessionID)
	require.True(t, ok)
	assert.True(t, final.Files["I"].SavedToGallery)
	assert.Empty(t, final.Files["I"].Path)
	assert.False(t, final.Files["D"].SavedToGallery)
	assert.NotEmpty(t, final.Files["D"].Path)
	assert.Len(t, gallery.saved, 1)
}
