package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// RunID records the analysis run identifier under the key "run_id".
// If id is nil, it returns an empty Attr.
func RunID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("run_id", id)
}

// Customer records a customer identifier under the key "customer_id".
// If id is nil, it returns an empty Attr.
func Customer(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("customer_id", id)
}

// Rows records a row count under the key "rows".
func Rows(n int) slog.Attr {
	return slog.Int("rows", n)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}
