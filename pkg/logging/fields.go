package logging

import (
	"log/slog"

	"pulse/internal/core/domain"
)

// Domain identifiers

func Room(id domain.RoomID) slog.Attr {
	return slog.String("room_id", string(id))
}

func Principal(id domain.PrincipalID) slog.Attr {
	return slog.String("principal_id", string(id))
}

func Connection(id domain.ConnectionID) slog.Attr {
	return slog.String("connection_id", string(id))
}

func Message(id domain.MessageID) slog.Attr {
	return slog.String("message_id", string(id))
}

func ClientMsg(id string) slog.Attr {
	return slog.String("client_msg_id", id)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Request / tracing

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func TraceID(id string) slog.Attr {
	return slog.String("trace_id", id)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
