package notify

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

const (
	// MaxNotifyPayload caps one frame; the helper reads it in a single buffer.
	MaxNotifyPayload = 32 * 1024
	// MaxNotifyFiles is how many file entries a frame carries; the rest is summarised as totalFiles.
	MaxNotifyFiles = 20
)

var (
	DefaultUnixSocketPath = "/tmp/localsend-notify.sock"
	UnixSocketTimeout     = 3 * time.Second
)

// SocketNotifier forwards events to a local helper process over a Unix socket.
// Frames are a 4 byte little-endian length followed by the JSON payload; the helper
// answers with a JSON object that may carry an "error" field.
type SocketNotifier struct {
	Path string
}

func NewSocketNotifier(path string) *SocketNotifier {
	if path == "" {
		path = DefaultUnixSocketPath
	}
	return &SocketNotifier{Path: path}
}

// Notify sends in the background. The helper is optional, so failures only reach the debug log.
func (s *SocketNotifier) Notify(notification *types.Notification) {
	if notification == nil {
		return
	}
	go func() {
		if err := s.Send(notification); err != nil {
			tool.DefaultLogger.Debugf("[Notify] Failed to send %s notification: %v", notification.Type, err)
		}
	}()
}

// Send delivers one notification and waits for the helper's reply.
func (s *SocketNotifier) Send(notification *types.Notification) error {
	if notification == nil {
		return errors.New("nil notification")
	}
	if _, err := os.Stat(s.Path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unix socket not found: %s", s.Path)
	}

	payload, err := sonic.Marshal(truncateFiles(notification))
	if err != nil {
		return fmt.Errorf("failed to serialize notification: %w", err)
	}
	if len(payload) > MaxNotifyPayload {
		return fmt.Errorf("notification payload too large: %d bytes (max %d)", len(payload), MaxNotifyPayload)
	}

	conn, err := net.DialTimeout("unix", s.Path, UnixSocketTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.Path, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			tool.DefaultLogger.Debugf("[Notify] close %s: %v", s.Path, err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(2 * UnixSocketTimeout)); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}
	if err := writeFrame(conn, payload); err != nil {
		return err
	}
	if err := readReply(conn); err != nil {
		return err
	}
	tool.DefaultLogger.Debugf("[Notify] Sent %s over %s", notification.Type, s.Path)
	return nil
}

// truncateFiles returns n, or a shallow copy whose file list is cut to MaxNotifyFiles.
func truncateFiles(n *types.Notification) *types.Notification {
	files, ok := n.Data["files"].([]types.FileMetadata)
	if !ok || len(files) <= MaxNotifyFiles {
		return n
	}
	trimmed := *n
	trimmed.Data = maps.Clone(n.Data)
	trimmed.Data["files"] = files[:MaxNotifyFiles]
	trimmed.Data["totalFiles"] = len(files)
	return &trimmed
}

func writeFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func readReply(r io.Reader) error {
	buf := make([]byte, 4096)
	n, err := r.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read reply: %w", err)
	}
	if n == 0 {
		return nil
	}
	var reply struct {
		Error string `json:"error"`
	}
	if err := sonic.Unmarshal(buf[:n], &reply); err != nil {
		tool.DefaultLogger.Debugf("[Notify] Unparsed helper reply: %s", string(buf[:n]))
		return nil
	}
	if reply.Error != "" {
		return fmt.Errorf("helper returned error: %s", reply.Error)
	}
	return nil
}
