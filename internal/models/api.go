// Package models defines API response envelopes shared by the HTTP handlers.
package models

// AckStatus represents the outcome reported to the webhook invoker.
type AckStatus string

const (
	// AckStatusProcessed indicates the event advanced a conversation.
	AckStatusProcessed AckStatus = "processed"
	// AckStatusIgnored indicates the event was acknowledged and dropped.
	AckStatusIgnored AckStatus = "ignored"
	// AckStatusError indicates the handler failed unexpectedly.
	AckStatusError AckStatus = "error"
)

// Ack is the structured acknowledgement returned for every webhook delivery.
type Ack struct {
	Status  AckStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}

// Processed creates an acknowledgement for a handled event.
func Processed() Ack {
	return Ack{Status: AckStatusProcessed}
}

// Ignored creates an acknowledgement for a dropped event with the drop reason.
func Ignored(reason string) Ack {
	return Ack{Status: AckStatusIgnored, Message: reason}
}

// ErrorAck creates an acknowledgement for a failed event.
func ErrorAck(message string) Ack {
	return Ack{Status: AckStatusError, Message: message}
}

// APIResponse is the standard envelope for non-webhook endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
