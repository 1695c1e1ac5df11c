package errors

import (
	"encoding/json"
	"log/slog"
)

// ClientError is the body returned to HTTP and MCP clients.
// It never contains the underlying cause.
type ClientError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// opaqueMessages replaces internal messages for codes whose text could
// leak implementation detail.
var opaqueMessages = map[Category]string{
	CategoryStore:    "the index could not be queried",
	CategoryShard:    "a shard could not be reached",
	CategoryInternal: "internal error",
	CategoryConfig:   "service misconfigured",
}

// ForClient converts any error to the client-facing body.
// Validation messages are passed through because they describe the
// caller's own input; everything else is reduced to its code.
func ForClient(err error, requestID string) ClientError {
	se, ok := As(err)
	if !ok {
		se = Wrap(ErrCodeInternal, err)
	}

	msg := se.Message
	if se.Category != CategoryValidation && se.Code != ErrCodeRateLimited {
		msg = opaqueMessages[se.Category]
		if msg == "" {
			msg = opaqueMessages[CategoryInternal]
		}
	}

	return ClientError{Code: se.Code, Message: msg, RequestID: requestID}
}

// jsonError is the JSON representation of an error for machine consumption.
type jsonError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Severity string            `json:"severity"`
	Details  map[string]string `json:"details,omitempty"`
	Cause    string            `json:"cause,omitempty"`
}

// FormatJSON returns a full JSON representation of the error, cause included.
// Use it for logs and local CLI output only.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	se, ok := As(err)
	if !ok {
		se = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:     se.Code,
		Message:  se.Message,
		Category: string(se.Category),
		Severity: string(se.Severity),
		Details:  se.Details,
	}
	if se.Cause != nil {
		je.Cause = se.Cause.Error()
	}

	return json.Marshal(je)
}

// LogAttrs formats an error as slog attributes.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	se, ok := As(err)
	if !ok {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error_code", se.Code),
		slog.String("message", se.Message),
		slog.String("category", string(se.Category)),
		slog.String("severity", string(se.Severity)),
	}
	if se.Cause != nil {
		attrs = append(attrs, slog.String("cause", se.Cause.Error()))
	}
	for k, v := range se.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}

// FormatForLog renders an error on one line for CLI stderr output.
func FormatForLog(err error) string {
	if err == nil {
		return ""
	}

	se, ok := As(err)
	if !ok {
		return err.Error()
	}

	if se.Cause != nil {
		return se.Error() + ": " + se.Cause.Error()
	}
	return se.Error()
}
