package notify

import (
	"errors"
	"time"

	"github.com/moyoez/imagerestore/tool"
	"github.com/moyoez/imagerestore/transfer"
	"github.com/moyoez/imagerestore/types"
)

// MultiSink fans every callback out to each sink in order.
type MultiSink []Sink

func (m MultiSink) OnProgress(completed, target, bytesPerSec, usecRemaining uint64) {
	for _, s := range m {
		s.OnProgress(completed, target, bytesPerSec, usecRemaining)
	}
}

func (m MultiSink) OnComplete(totalBytes, durationUsec, avgBytesPerSec uint64) {
	for _, s := range m {
		s.OnComplete(totalBytes, durationUsec, avgBytesPerSec)
	}
}

func (m MultiSink) OnError(err error) {
	for _, s := range m {
		s.OnError(err)
	}
}

func (m MultiSink) OnCancelled() {
	for _, s := range m {
		s.OnCancelled()
	}
}

// LogSink writes progress to tool.DefaultLogger.
type LogSink struct {
	SessionId string
}

func (l LogSink) OnProgress(completed, target, bytesPerSec, usecRemaining uint64) {
	tool.DefaultLogger.Infof("[Restore] %s: %s", l.SessionId, Describe(snapshotOf(completed, target, bytesPerSec, usecRemaining)))
}

func (l LogSink) OnComplete(totalBytes, durationUsec, avgBytesPerSec uint64) {
	s := Summarize(totalBytes, time.Duration(durationUsec)*time.Microsecond)
	tool.DefaultLogger.Infof("[Restore] %s: %s", l.SessionId, DescribeSummary(s))
}

func (l LogSink) OnError(err error) {
	tool.DefaultLogger.Errorf("[Restore] %s: error restoring disk image: %v", l.SessionId, err)
}

func (l LogSink) OnCancelled() {
	tool.DefaultLogger.Warnf("[Restore] %s: cancelled, target left unwiped", l.SessionId)
}

// NotificationSink turns callbacks into types.Notification values and hands
// them to Send. It backs both the websocket hub and the unix socket.
type NotificationSink struct {
	SessionId string
	Send      func(*types.Notification)
}

func (n NotificationSink) send(notification *types.Notification) {
	if notification.Data == nil {
		notification.Data = map[string]any{}
	}
	notification.Data["sessionId"] = n.SessionId
	n.Send(notification)
}

func (n NotificationSink) OnProgress(completed, target, bytesPerSec, usecRemaining uint64) {
	snap := snapshotOf(completed, target, bytesPerSec, usecRemaining)
	n.send(&types.Notification{
		Type:    types.NotifyRestoreProgress,
		Title:   "Restoring Disk Image",
		Message: Describe(snap),
		Data: map[string]any{
			"completedBytes": completed,
			"targetBytes":    target,
			"bytesPerSec":    bytesPerSec,
			"usecRemaining":  usecRemaining,
			"etaKnown":       snap.ETAKnown,
			"fraction":       snap.Fraction(),
		},
	})
}

func (n NotificationSink) OnComplete(totalBytes, durationUsec, avgBytesPerSec uint64) {
	s := Summarize(totalBytes, time.Duration(durationUsec)*time.Microsecond)
	n.send(&types.Notification{
		Type:    types.NotifyRestoreEnd,
		Title:   "Disk Image Restored",
		Message: DescribeSummary(s),
		Data: map[string]any{
			"totalBytes":     totalBytes,
			"durationUsec":   durationUsec,
			"avgBytesPerSec": avgBytesPerSec,
		},
	})
}

func (n NotificationSink) OnError(err error) {
	data := map[string]any{"error": err.Error()}
	if kind := errorKind(err); kind != "" {
		data["kind"] = kind
	}
	n.send(&types.Notification{
		Type:    types.NotifyRestoreError,
		Title:   "Error restoring disk image",
		Message: err.Error(),
		Data:    data,
	})
}

func (n NotificationSink) OnCancelled() {
	n.send(&types.Notification{
		Type:    types.NotifyRestoreCancelled,
		Title:   "Restore Cancelled",
		Message: "The operation was cancelled",
	})
}

// errorKind names the sentinel behind err for machine consumers.
func errorKind(err error) string {
	kinds := []struct {
		err  error
		name string
	}{
		{transfer.ErrSourceOpen, "source_open"},
		{transfer.ErrSourceSize, "source_size"},
		{transfer.ErrTargetOpen, "target_open"},
		{transfer.ErrTargetSize, "target_size"},
		{transfer.ErrShortRead, "short_read"},
		{transfer.ErrWrite, "write"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// Broadcaster is anything that fans a notification out, e.g. the websocket hub.
type Broadcaster interface {
	Broadcast(notification *types.Notification)
}

// NewBroadcastSink sends notifications through b.
func NewBroadcastSink(sessionId string, b Broadcaster) Sink {
	return NotificationSink{SessionId: sessionId, Send: b.Broadcast}
}

// NewSocketSink sends notifications to the unix socket listener at socketPath.
// Delivery failures are logged and otherwise ignored.
func NewSocketSink(sessionId, socketPath string) Sink {
	return NotificationSink{
		SessionId: sessionId,
		Send: func(notification *types.Notification) {
			if err := SendNotification(notification, socketPath); err != nil {
				tool.DefaultLogger.Warnf("[Notify] %s: %v", notification.Type, err)
			}
		},
	}
}
