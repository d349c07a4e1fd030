package api

import "fmt"

// UpstreamError reports a transport failure or unexpected response
// shape that survived the internal retry budget.
type UpstreamError struct {
	Endpoint string
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return fmt.Sprintf("failed to get response from: %s", e.Endpoint)
}

// NotAvailableError reports an explicit upstream not-found, typically
// a geographic restriction. Never retried.
type NotAvailableError struct {
	Message string
}

func (e *NotAvailableError) Error() string {
	return e.Message
}

// UnsupportedStreamError reports a DRM-protected stream variant.
// Fatal; resolution never falls back to a degraded stream.
type UnsupportedStreamError struct {
	StreamType string
}

func (e *UnsupportedStreamError) Error() string {
	return "unsupported DRM stream type: " + e.StreamType
}
