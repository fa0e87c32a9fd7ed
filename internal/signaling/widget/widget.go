// Package widget implements the signaling.MediaWidget boundary for the
// hosted conferencing service. The contract is intentionally narrow: given a
// room name, a call is joinable at the returned URL. Media transport itself
// never passes through this process.
package widget

import "strings"

// Hosted builds join URLs for the hosted conferencing widget
type Hosted struct {
	baseURL string
}

// NewHosted creates a widget for the given base URL
func NewHosted(baseURL string) *Hosted {
	return &Hosted{baseURL: strings.TrimRight(baseURL, "/")}
}

// JoinURL returns the URL at which the room can be joined
func (h *Hosted) JoinURL(roomName string) string {
	return h.baseURL + "/" + roomName
}
