package models

import (
	"context"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/localsend-session/notify"
	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

// RecentSessionTTL is how long a finished receive session stays queryable.
var RecentSessionTTL = 300 * time.Second

// MediaSaver hands received images and videos over to a media gallery.
// On success the file no longer has a path of its own.
type MediaSaver interface {
	SaveToGallery(ctx context.Context, path string, file types.FileMetadata) error
}

// ProgressFunc receives the cumulative number of bytes written for one file.
type ProgressFunc func(fileID string, written int64)

type RegistryOptions struct {
	DestDir         string
	AutoAccept      bool
	DecisionTimeout time.Duration // zero waits until the session goes away
	Observer        notify.Observer
	MediaSaver      MediaSaver
	Tokens          *TokenAuthority
}

// Registry owns the single receive session of the process.
// Every mutation happens under mu; disk and network I/O never do.
type Registry struct {
	mu      sync.Mutex
	session *receiveSession
	opts    RegistryOptions
	recent  *ttlworker.Cache[string, *types.ReceiveSessionSnapshot]
}

type receiveSession struct {
	id        string
	status    types.SessionStatus
	sender    types.Device
	files     map[string]*receivingFile
	destDir   string
	startedAt *time.Time
	endedAt   *time.Time
	decision  *decision
	ctx       context.Context
	cancel    context.CancelFunc
}

type receivingFile struct {
	meta           types.FileMetadata
	status         types.FileStatus
	desiredName    string
	path           string
	savedToGallery bool
	errMsg         string
}

// decision is resolved at most once; done is closed on resolution.
type decision struct {
	once      sync.Once
	done      chan struct{}
	selection map[string]string
}

func (d *decision) resolve(selection map[string]string) bool {
	resolved := false
	d.once.Do(func() {
		d.selection = selection
		resolved = true
		close(d.done)
	})
	return resolved
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Observer == nil {
		opts.Observer = notify.Nop
	}
	if opts.Tokens == nil {
		opts.Tokens = NewTokenAuthority()
	}
	if opts.DestDir == "" {
		opts.DestDir = "uploads"
	}
	return &Registry{
		opts:   opts,
		recent: ttlworker.NewCache[string, *types.ReceiveSessionSnapshot](RecentSessionTTL),
	}
}

// SetAutoAccept switches the quick-save policy for sessions negotiated afterwards.
func (r *Registry) SetAutoAccept(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.AutoAccept = v
}

func validateBatch(req types.SendRequest) error {
	if len(req.Files) == 0 {
		return fmt.Errorf("%w: empty file list", types.ErrInvalidRequest)
	}
	for id, f := range req.Files {
		switch {
		case id == "":
			return fmt.Errorf("%w: empty file id", types.ErrInvalidRequest)
		case f.ID != "" && f.ID != id:
			return fmt.Errorf("%w: file id %q does not match key %q", types.ErrInvalidRequest, f.ID, id)
		case strings.TrimSpace(f.FileName) == "":
			return fmt.Errorf("%w: file %q has no name", types.ErrInvalidRequest, id)
		case f.Size < 0:
			return fmt.Errorf("%w: file %q has negative size", types.ErrInvalidRequest, id)
		}
	}
	return nil
}

// Negotiate creates the receive session for an incoming batch and blocks until a decision is made.
// It returns the accepted file ids mapped to their upload tokens; an empty map means nothing was selected.
func (r *Registry) Negotiate(ctx context.Context, req types.SendRequest, senderIP string) (types.SendRequestResponse, error) {
	r.mu.Lock()
	if r.session != nil {
		r.mu.Unlock()
		return nil, types.ErrBusy
	}
	if err := validateBatch(req); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	sctx, cancel := context.WithCancel(context.Background())
	s := &receiveSession{
		id:       tool.GenerateRandomUUID(),
		status:   types.SessionStatusWaiting,
		sender:   types.Device{DeviceInfo: req.Info, IP: senderIP},
		files:    make(map[string]*receivingFile, len(req.Files)),
		destDir:  r.opts.DestDir,
		decision: &decision{done: make(chan struct{})},
		ctx:      sctx,
		cancel:   cancel,
	}
	for id, f := range req.Files {
		f.ID = id
		s.files[id] = &receivingFile{meta: f, status: types.FileStatusQueued}
	}
	r.session = s
	autoAccept := r.opts.AutoAccept
	snapshot := s.snapshot(r.opts.Tokens)
	r.mu.Unlock()

	tool.DefaultLogger.Infof("[SendRequest] Session %s from %s (%s) with %d files", s.id, req.Info.Alias, senderIP, len(req.Files))

	var selection map[string]string
	if autoAccept {
		selection = make(map[string]string, len(s.files))
		for id, f := range snapshot.Files {
			selection[id] = f.File.FileName
		}
	} else {
		r.opts.Observer.Notify(notify.SessionNegotiated(snapshot))
		var err error
		selection, err = r.awaitDecision(ctx, s)
		if err != nil {
			return nil, err
		}
	}
	return r.applyDecision(s, selection)
}

func (r *Registry) awaitDecision(ctx context.Context, s *receiveSession) (map[string]string, error) {
	var timeout <-chan time.Time
	if r.opts.DecisionTimeout > 0 {
		t := time.NewTimer(r.opts.DecisionTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-s.decision.done:
	case <-s.ctx.Done():
		return nil, types.ErrInvalidState
	case <-ctx.Done():
		tool.DefaultLogger.Warnf("[SendRequest] Sender of session %s went away before the decision", s.id)
		r.destroyIf(s, false)
		return nil, ctx.Err()
	case <-timeout:
		tool.DefaultLogger.Infof("[SendRequest] Decision for session %s timed out", s.id)
		s.decision.resolve(nil)
	}
	return s.decision.selection, nil
}

func (r *Registry) applyDecision(s *receiveSession, selection map[string]string) (types.SendRequestResponse, error) {
	r.mu.Lock()
	if r.session != s || s.status != types.SessionStatusWaiting {
		r.mu.Unlock()
		return nil, types.ErrInvalidState
	}

	if selection == nil {
		s.status = types.SessionStatusDeclined
		final := r.destroyLocked(s)
		r.mu.Unlock()
		r.opts.Observer.Notify(notify.SessionTerminal(s.id, final.Status, final.Stats(), final))
		return nil, types.ErrDeclined
	}

	resp := make(types.SendRequestResponse, len(selection))
	for id, f := range s.files {
		name, ok := selection[id]
		if !ok {
			continue
		}
		token, err := r.opts.Tokens.Issue(s.id, id)
		if err != nil {
			r.destroyLocked(s)
			r.mu.Unlock()
			return nil, fmt.Errorf("issue token: %w", err)
		}
		f.desiredName = tool.SanitizeFileName(name, tool.SanitizeFileName(f.meta.FileName, id))
		resp[id] = token
	}

	if len(resp) == 0 {
		s.status = types.SessionStatusDeclined
		final := r.destroyLocked(s)
		r.mu.Unlock()
		r.opts.Observer.Notify(notify.SessionTerminal(s.id, final.Status, final.Stats(), final))
		return types.SendRequestResponse{}, nil
	}

	for id, f := range s.files {
		if _, ok := resp[id]; !ok {
			f.status = types.FileStatusSkipped
		}
	}
	s.status = types.SessionStatusSending
	r.mu.Unlock()

	tool.DefaultLogger.Infof("[SendRequest] Session %s accepted %d of %d files", s.id, len(resp), len(s.files))
	return resp, nil
}

// Decide publishes the decision for the waiting session. A nil selection declines.
// Names left empty fall back to the announced file name. Only the first call counts.
func (r *Registry) Decide(selection map[string]string) error {
	r.mu.Lock()
	s := r.session
	if s == nil || s.status != types.SessionStatusWaiting {
		r.mu.Unlock()
		return types.ErrNoSession
	}
	var copied map[string]string
	if selection != nil {
		copied = make(map[string]string, len(selection))
		for id, name := range selection {
			f, ok := s.files[id]
			if !ok {
				continue
			}
			if strings.TrimSpace(name) == "" {
				name = f.meta.FileName
			}
			copied[id] = name
		}
	}
	r.mu.Unlock()

	if !s.decision.resolve(copied) {
		tool.DefaultLogger.Debugf("[Decide] Session %s already decided, ignoring", s.id)
	}
	return nil
}

// BeginUpload authorises the upload of one file and consumes its token.
// It returns the id of the session the upload belongs to.
func (r *Registry) BeginUpload(fileID, token, callerIP string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.session
	if s == nil {
		return "", fmt.Errorf("%w: no active session", types.ErrWrongState)
	}
	if s.sender.IP != callerIP {
		return "", types.ErrWrongIP
	}
	if s.status != types.SessionStatusSending {
		return "", fmt.Errorf("%w: session is %s", types.ErrWrongState, s.status)
	}
	f, ok := s.files[fileID]
	if !ok || f.status != types.FileStatusQueued || !r.opts.Tokens.Consume(s.id, fileID, token) {
		return "", types.ErrInvalidToken
	}
	f.status = types.FileStatusSending
	if s.startedAt == nil {
		now := time.Now()
		s.startedAt = &now
	}
	return s.id, nil
}

// StreamFileBody writes body to a fresh file in the destination directory.
// The copy is aborted when ctx ends or the session is destroyed; the latter closes body
// so a read blocked on a stalled sender returns. A body shorter than declaredSize fails
// the file; partial files are kept. A negative declaredSize falls back to the announced size.
func (r *Registry) StreamFileBody(ctx context.Context, sessionID, fileID string, body io.ReadCloser, declaredSize int64, progress ProgressFunc) error {
	r.mu.Lock()
	s := r.session
	if s == nil || s.id != sessionID {
		r.mu.Unlock()
		return types.ErrInvalidState
	}
	f, ok := s.files[fileID]
	if !ok || f.status != types.FileStatusSending {
		r.mu.Unlock()
		return fmt.Errorf("%w: file %s is not uploading", types.ErrWrongState, fileID)
	}
	name, meta, dir := f.desiredName, f.meta, s.destDir
	r.mu.Unlock()
	if declaredSize < 0 {
		declaredSize = meta.Size
	}

	copyCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, func() {
		cancel()
		if err := body.Close(); err != nil {
			tool.DefaultLogger.Debugf("[Upload] close body of %s: %v", fileID, err)
		}
	})
	defer stop()

	out, path, err := tool.CreateUnique(dir, name)
	if err != nil {
		err = fmt.Errorf("%w: %w", types.ErrIOFailure, err)
		r.finishFile(s, fileID, types.FileStatusFailed, "", false, err.Error())
		return err
	}

	onWrite := func(written int64) {
		if progress != nil {
			progress(fileID, written)
		}
		fraction := -1.0
		if declaredSize > 0 {
			fraction = float64(written) / float64(declaredSize)
		}
		r.opts.Observer.Notify(notify.FileProgress(s.id, fileID, written, fraction))
	}
	written, err := tool.CopyWithContext(copyCtx, out, body, onWrite)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err == nil && declaredSize > 0 && written < declaredSize {
		err = fmt.Errorf("received %d of %d bytes", written, declaredSize)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", types.ErrIOFailure, err)
		tool.DefaultLogger.Errorf("[Upload] File %s of session %s failed: %v", fileID, s.id, err)
		r.finishFile(s, fileID, types.FileStatusFailed, path, false, err.Error())
		return err
	}

	saved := false
	if r.opts.MediaSaver != nil && meta.FileType.IsMedia() {
		if gerr := r.opts.MediaSaver.SaveToGallery(copyCtx, path, meta); gerr != nil {
			tool.DefaultLogger.Warnf("[Upload] Gallery rejected %s, keeping %s: %v", meta.FileName, path, gerr)
		} else {
			saved = true
			path = ""
		}
	}
	tool.DefaultLogger.Infof("[Upload] Saved %s (%d bytes) for session %s", meta.FileName, written, s.id)
	r.finishFile(s, fileID, types.FileStatusFinished, path, saved, "")
	return nil
}

// finishFile records a per-file outcome and closes the session once every file is terminal.
func (r *Registry) finishFile(s *receiveSession, fileID string, status types.FileStatus, path string, saved bool, errMsg string) {
	r.mu.Lock()
	if r.session != s {
		r.mu.Unlock()
		tool.DefaultLogger.Debugf("[Upload] Session %s is gone, dropping result of %s", s.id, fileID)
		return
	}
	f := s.files[fileID]
	if f == nil || !f.status.CanMoveTo(status) {
		r.mu.Unlock()
		return
	}
	f.status = status
	f.path = path
	f.savedToGallery = saved
	f.errMsg = errMsg

	var final *types.ReceiveSessionSnapshot
	if s.allTerminal() {
		s.status = types.SessionStatusFinished
		if s.anyFailed() {
			s.status = types.SessionStatusFinishedWithErrors
		}
		snap := r.destroyLocked(s)
		final = &snap
	}
	r.mu.Unlock()

	r.opts.Observer.Notify(notify.FileFinished(s.id, fileID, status, errMsg))
	if final != nil {
		tool.DefaultLogger.Infof("[Upload] Session %s %s", s.id, final.Status)
		r.opts.Observer.Notify(notify.SessionTerminal(s.id, final.Status, final.Stats(), *final))
	}
}

// CancelBySender ends the session when callerIP is its sender and it has not finished yet.
func (r *Registry) CancelBySender(callerIP string) bool {
	r.mu.Lock()
	s := r.session
	if s == nil || s.sender.IP != callerIP || s.status.Terminal() {
		r.mu.Unlock()
		return false
	}
	s.status = types.SessionStatusCanceledBySender
	final := r.destroyLocked(s)
	r.mu.Unlock()

	tool.DefaultLogger.Infof("[Cancel] Session %s canceled by sender %s", s.id, callerIP)
	r.opts.Observer.Notify(notify.SessionCanceled(s.id, true))
	r.opts.Observer.Notify(notify.SessionTerminal(s.id, final.Status, final.Stats(), final))
	return true
}

// Close destroys the current session, if any, regardless of its state.
func (r *Registry) Close() bool {
	r.mu.Lock()
	s := r.session
	if s == nil {
		r.mu.Unlock()
		return false
	}
	r.destroyLocked(s)
	r.mu.Unlock()

	tool.DefaultLogger.Infof("[Cancel] Session %s closed locally", s.id)
	r.opts.Observer.Notify(notify.SessionCanceled(s.id, false))
	return true
}

func (r *Registry) destroyIf(s *receiveSession, bySender bool) {
	r.mu.Lock()
	if r.session != s {
		r.mu.Unlock()
		return
	}
	r.destroyLocked(s)
	r.mu.Unlock()
	r.opts.Observer.Notify(notify.SessionCanceled(s.id, bySender))
}

// destroyLocked revokes tokens, aborts streams and archives the final snapshot. r.mu must be held.
func (r *Registry) destroyLocked(s *receiveSession) types.ReceiveSessionSnapshot {
	if s.endedAt == nil {
		now := time.Now()
		s.endedAt = &now
	}
	r.opts.Tokens.Revoke(s.id)
	s.cancel()
	if r.session == s {
		r.session = nil
	}
	snap := s.snapshot(r.opts.Tokens)
	r.recent.Set(s.id, &snap)
	return snap
}

// Current returns a copy of the active session.
func (r *Registry) Current() (types.ReceiveSessionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return types.ReceiveSessionSnapshot{}, false
	}
	return r.session.snapshot(r.opts.Tokens), true
}

// Recent returns the final snapshot of a session that ended within RecentSessionTTL.
func (r *Registry) Recent(sessionID string) (types.ReceiveSessionSnapshot, bool) {
	snap := r.recent.Get(sessionID)
	if snap == nil {
		return types.ReceiveSessionSnapshot{}, false
	}
	copied := *snap
	copied.Files = maps.Clone(snap.Files)
	return copied, true
}

// SenderIP returns the address of the negotiated sender, if a session exists.
func (r *Registry) SenderIP() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return "", false
	}
	return r.session.sender.IP, true
}

func (s *receiveSession) allTerminal() bool {
	for _, f := range s.files {
		if !f.status.Terminal() {
			return false
		}
	}
	return true
}

func (s *receiveSession) anyFailed() bool {
	for _, f := range s.files {
		if f.status == types.FileStatusFailed {
			return true
		}
	}
	return false
}

func (s *receiveSession) snapshot(tokens *TokenAuthority) types.ReceiveSessionSnapshot {
	files := make(map[string]types.ReceivingFileSnapshot, len(s.files))
	for id, f := range s.files {
		files[id] = types.ReceivingFileSnapshot{
			File:           f.meta,
			Status:         f.status,
			TokenIssued:    tokens.Has(s.id, id),
			DesiredName:    f.desiredName,
			Path:           f.path,
			SavedToGallery: f.savedToGallery,
			ErrorMessage:   f.errMsg,
		}
	}
	return types.ReceiveSessionSnapshot{
		SessionId: s.id,
		Status:    s.status,
		Sender:    s.sender,
		Files:     files,
		DestDir:   s.destDir,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
	}
}
