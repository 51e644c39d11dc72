package notify

import "github.com/moyoez/imagerestore/types"

// SinksFor assembles the sinks a session reports to: always the log, the
// broadcaster when there is one, and the unix socket when enabled in cfg.
func SinksFor(sessionId string, cfg types.AppConfig, b Broadcaster) Sink {
	sinks := MultiSink{LogSink{SessionId: sessionId}}
	if b != nil {
		sinks = append(sinks, NewBroadcastSink(sessionId, b))
	}
	if cfg.Notify && UseNotify {
		sinks = append(sinks, NewSocketSink(sessionId, cfg.NotifySocket))
	}
	return sinks
}
