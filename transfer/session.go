package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/moyoez/localsend-session/notify"
	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

// MaxPreviewBytes is the largest single text item sent inline as a preview.
const MaxPreviewBytes = 1024

// ProgressFunc receives the fraction of one file already sent, or -1 when its size is unknown.
type ProgressFunc func(fileId string, fraction float64)

type SenderOptions struct {
	Self     types.DeviceInfo
	Observer notify.Observer
	Progress ProgressFunc
}

// Sender drives one outgoing batch at a time.
type Sender struct {
	mu      sync.Mutex
	opts    SenderOptions
	session *sendSession
}

type sendSession struct {
	id        string
	status    types.SessionStatus
	target    types.Device
	order     []string
	files     map[string]*sendingFile
	startedAt *time.Time
	endedAt   *time.Time
	errMsg    string
	// running is set while a RunTransfer loop owns the session.
	running bool
	// cancel aborts the in-flight negotiation or file upload.
	cancel context.CancelFunc
}

type sendingFile struct {
	meta   types.FileMetadata
	status types.FileStatus
	token  string
	source types.LocalFile
	errMsg string
}

func NewSender(opts SenderOptions) *Sender {
	if opts.Observer == nil {
		opts.Observer = notify.Nop
	}
	return &Sender{opts: opts}
}

// StartSession negotiates files with target. On success the session is Sending and
// the accepted files carry their tokens. A terminal previous session is replaced.
func (s *Sender) StartSession(ctx context.Context, target types.Device, files []types.LocalFile) (types.SendSessionSnapshot, error) {
	if len(files) == 0 {
		return types.SendSessionSnapshot{}, fmt.Errorf("%w: no files to send", types.ErrInvalidRequest)
	}

	sess := &sendSession{
		id:     tool.GenerateRandomUUID(),
		status: types.SessionStatusWaiting,
		target: target,
		order:  make([]string, 0, len(files)),
		files:  make(map[string]*sendingFile, len(files)),
	}
	request := &types.SendRequest{Info: s.opts.Self, Files: make(map[string]types.FileMetadata, len(files))}
	for _, f := range files {
		meta, err := tool.LocalFileMetadata(f)
		if err != nil {
			return types.SendSessionSnapshot{}, fmt.Errorf("%w: %w", types.ErrInvalidRequest, err)
		}
		meta.ID = tool.GenerateRandomUUID()
		sess.order = append(sess.order, meta.ID)
		sess.files[meta.ID] = &sendingFile{meta: meta, status: types.FileStatusQueued, source: f}
	}
	if len(files) == 1 {
		only := sess.files[sess.order[0]]
		if only.meta.FileType == types.FileTypeText && only.source.InMemory() && len(only.source.Bytes()) <= MaxPreviewBytes {
			only.meta.Preview = string(only.source.Bytes())
		}
	}
	for id, f := range sess.files {
		request.Files[id] = f.meta
	}

	negotiateCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess.cancel = cancel

	s.mu.Lock()
	if s.session != nil && !s.session.status.Terminal() {
		s.mu.Unlock()
		return types.SendSessionSnapshot{}, types.ErrBusy
	}
	s.session = sess
	s.mu.Unlock()

	tool.DefaultLogger.Infof("[SendRequest] Session %s: offering %d files to %s", sess.id, len(files), target.BaseURL())
	response, err := SendRequest(negotiateCtx, target, request)

	s.mu.Lock()
	if s.session != sess {
		s.mu.Unlock()
		return types.SendSessionSnapshot{}, types.ErrCanceled
	}
	sess.cancel = nil
	if err != nil {
		switch StatusOf(err) {
		case http.StatusForbidden:
			sess.status = types.SessionStatusDeclined
		case http.StatusConflict:
			sess.status = types.SessionStatusRecipientBusy
		default:
			sess.status = types.SessionStatusFinishedWithErrors
			sess.errMsg = DescribeError(err)
		}
		now := time.Now()
		sess.endedAt = &now
		snap := sess.snapshot()
		s.mu.Unlock()
		tool.DefaultLogger.Warnf("[SendRequest] Session %s ended as %s: %s", sess.id, snap.Status, DescribeError(err))
		s.opts.Observer.Notify(notify.SessionTerminal(sess.id, snap.Status, snap.Stats(), snap))
		return snap, err
	}

	accepted := 0
	for _, id := range sess.order {
		if token, ok := response[id]; ok && token != "" {
			sess.files[id].token = token
			accepted++
		}
	}
	if accepted == 0 {
		snap := sess.snapshot()
		s.session = nil
		s.mu.Unlock()
		tool.DefaultLogger.Infof("[SendRequest] Session %s: receiver selected nothing", sess.id)
		return snap, types.ErrNothingAccepted
	}
	for _, id := range sess.order {
		if f := sess.files[id]; f.token == "" {
			f.status = types.FileStatusSkipped
		}
	}
	sess.status = types.SessionStatusSending
	snap := sess.snapshot()
	s.mu.Unlock()

	tool.DefaultLogger.Infof("[SendRequest] Session %s: %d of %d files accepted", sess.id, accepted, len(sess.order))
	return snap, nil
}

// RunTransfer uploads the accepted files one after another. A failed file does not stop the
// loop; CancelSession does, returning types.ErrCanceled.
func (s *Sender) RunTransfer(ctx context.Context) (types.SendSessionSnapshot, error) {
	s.mu.Lock()
	sess := s.session
	if sess == nil {
		s.mu.Unlock()
		return types.SendSessionSnapshot{}, types.ErrNoSession
	}
	if sess.status != types.SessionStatusSending {
		s.mu.Unlock()
		return sess.snapshot(), fmt.Errorf("%w: session is %s", types.ErrWrongState, sess.status)
	}
	if sess.running {
		s.mu.Unlock()
		return sess.snapshot(), fmt.Errorf("%w: transfer already running", types.ErrWrongState)
	}
	sess.running = true
	if sess.startedAt == nil {
		now := time.Now()
		sess.startedAt = &now
	}
	s.mu.Unlock()

	for _, id := range sess.order {
		s.mu.Lock()
		if s.session != sess {
			s.mu.Unlock()
			return types.SendSessionSnapshot{}, types.ErrCanceled
		}
		f := sess.files[id]
		if f.status != types.FileStatusQueued {
			s.mu.Unlock()
			continue
		}
		f.status = types.FileStatusSending
		fileCtx, cancel := context.WithCancel(ctx)
		sess.cancel = cancel
		meta, token, source := f.meta, f.token, f.source
		s.mu.Unlock()

		err := s.uploadOne(fileCtx, sess, meta, token, source)
		cancel()

		s.mu.Lock()
		if s.session != sess {
			s.mu.Unlock()
			tool.DefaultLogger.Infof("[Upload] Session %s canceled during %s", sess.id, meta.FileName)
			return types.SendSessionSnapshot{}, types.ErrCanceled
		}
		sess.cancel = nil
		status := types.FileStatusFinished
		if err != nil {
			status = types.FileStatusFailed
			f.errMsg = DescribeError(err)
		}
		f.status = status
		errMsg := f.errMsg
		s.mu.Unlock()

		if err != nil {
			tool.DefaultLogger.Errorf("[Upload] %s failed: %s", meta.FileName, errMsg)
		} else {
			tool.DefaultLogger.Infof("[Upload] %s sent", meta.FileName)
		}
		s.opts.Observer.Notify(notify.FileFinished(sess.id, id, status, errMsg))
	}

	s.mu.Lock()
	if s.session != sess {
		s.mu.Unlock()
		return types.SendSessionSnapshot{}, types.ErrCanceled
	}
	sess.running = false
	sess.status = types.SessionStatusFinished
	for _, f := range sess.files {
		if f.status == types.FileStatusFailed {
			sess.status = types.SessionStatusFinishedWithErrors
			break
		}
	}
	now := time.Now()
	sess.endedAt = &now
	snap := sess.snapshot()
	s.mu.Unlock()

	s.opts.Observer.Notify(notify.SessionTerminal(sess.id, snap.Status, snap.Stats(), snap))
	return snap, nil
}

func (s *Sender) uploadOne(ctx context.Context, sess *sendSession, meta types.FileMetadata, token string, source types.LocalFile) error {
	var body io.Reader
	size := meta.Size
	if source.InMemory() {
		data := source.Bytes()
		body = bytes.NewReader(data)
		size = int64(len(data))
	} else {
		f, err := os.Open(source.Path)
		if err != nil {
			return fmt.Errorf("%w: %w", types.ErrIOFailure, err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				tool.DefaultLogger.Errorf("Failed to close %s: %v", source.Path, err)
			}
		}()
		body = f
	}

	onProgress := func(sent int64) {
		fraction := -1.0
		if size > 0 {
			fraction = float64(sent) / float64(size)
		}
		if s.opts.Progress != nil {
			s.opts.Progress(meta.ID, fraction)
		}
		s.opts.Observer.Notify(notify.FileProgress(sess.id, meta.ID, sent, fraction))
	}
	return Upload(ctx, sess.target, meta.ID, token, body, size, onProgress)
}

// CancelSession aborts the in-flight request, drops the session and tells the receiver.
// A failure to reach the receiver is logged and not retried.
func (s *Sender) CancelSession(ctx context.Context) error {
	s.mu.Lock()
	sess := s.session
	if sess == nil {
		s.mu.Unlock()
		return types.ErrNoSession
	}
	s.session = nil
	if sess.cancel != nil {
		sess.cancel()
	}
	active := !sess.status.Terminal()
	s.mu.Unlock()

	tool.DefaultLogger.Infof("[Cancel] Session %s canceled locally", sess.id)
	s.opts.Observer.Notify(notify.SessionCanceled(sess.id, false))
	if active {
		if err := Cancel(ctx, sess.target); err != nil && !errors.Is(err, context.Canceled) {
			tool.DefaultLogger.Warnf("[Cancel] Failed to notify receiver %s: %v", sess.target.BaseURL(), err)
		}
	}
	return nil
}

// Current returns a copy of the session, including a finished one not yet replaced.
func (s *Sender) Current() (types.SendSessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return types.SendSessionSnapshot{}, false
	}
	return s.session.snapshot(), true
}

// Run negotiates and, when anything was accepted, transfers.
func (s *Sender) Run(ctx context.Context, target types.Device, files []types.LocalFile) (types.SendSessionSnapshot, error) {
	snap, err := s.StartSession(ctx, target, files)
	if err != nil {
		return snap, err
	}
	return s.RunTransfer(ctx)
}

func (sess *sendSession) snapshot() types.SendSessionSnapshot {
	files := make(map[string]types.SendingFileSnapshot, len(sess.files))
	for id, f := range sess.files {
		source := f.source.Path
		if source == "" {
			source = "memory"
		}
		files[id] = types.SendingFileSnapshot{
			File:         f.meta,
			Status:       f.status,
			Token:        f.token,
			Source:       source,
			ErrorMessage: f.errMsg,
		}
	}
	return types.SendSessionSnapshot{
		SessionId:    sess.id,
		Status:       sess.status,
		Target:       sess.target,
		Order:        append([]string(nil), sess.order...),
		Files:        files,
		StartedAt:    sess.startedAt,
		EndedAt:      sess.endedAt,
		ErrorMessage: sess.errMsg,
	}
}
