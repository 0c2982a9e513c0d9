package events

import "github.com/Trickfest/StockfishEmbedded/internal/session"

// SessionSink bridges session events onto the bus so independent
// observers (console printer, structured logger, diagnostics) can each
// subscribe without sharing the session's single sink.
type SessionSink struct {
	bus       Bus
	sessionID string
}

// NewSessionSink constructs a bus-backed session sink.
func NewSessionSink(bus Bus, sessionID string) *SessionSink {
	return &SessionSink{bus: bus, sessionID: sessionID}
}

// Handle publishes one session event. Implements session.Sink.
func (s *SessionSink) Handle(event session.Event) {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.Publish(Event{
		Type:      typeFor(event.Kind),
		SessionID: s.sessionID,
		Payload:   event,
		Severity:  severityFor(event.Kind),
	})
}

func typeFor(kind session.Kind) string {
	switch kind {
	case session.KindStarted:
		return EventTypeSessionStarted
	case session.KindOutputLine:
		return EventTypeEngineLine
	case session.KindIterationStarted:
		return EventTypeIterationStarted
	case session.KindIterationCompleted:
		return EventTypeIterationCompleted
	case session.KindTimeout:
		return EventTypeSearchTimeout
	case session.KindStopped:
		return EventTypeSessionStopped
	case session.KindError:
		return EventTypeSessionError
	case session.KindFinished:
		return EventTypeSessionFinished
	default:
		return string(kind)
	}
}

func severityFor(kind session.Kind) string {
	switch kind {
	case session.KindTimeout:
		return SeverityWarn
	case session.KindError:
		return SeverityError
	default:
		return SeverityInfo
	}
}
