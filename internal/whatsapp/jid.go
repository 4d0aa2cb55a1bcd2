// Package whatsapp provides parsing and normalization of WhatsApp JIDs
// (chat/account identifiers of the form user[:device]@server).
package whatsapp

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// GroupServer is the reserved server segment for group chats.
	GroupServer = "g.us"

	// DefaultUserServer is the server segment for regular user accounts.
	DefaultUserServer = "s.whatsapp.net"

	// fromSeparator splits the webhook "from" field into sender and chat parts.
	fromSeparator = " in "
)

// ErrMalformedJID indicates an identifier without a server segment.
var ErrMalformedJID = errors.New("malformed jid: missing server segment")

// JID is a parsed WhatsApp identifier. Device is the agent/device suffix
// (the part after ':' in the user segment) and is dropped from the
// canonical form.
type JID struct {
	User   string
	Device string
	Server string
}

// ParseJID parses an identifier like "972546150790:16@s.whatsapp.net" or
// "120363365283777509@g.us". It returns ErrMalformedJID when the string
// carries no "@server" part.
func ParseJID(raw string) (JID, error) {
	raw = strings.TrimSpace(raw)

	user, server, found := strings.Cut(raw, "@")
	if !found || server == "" {
		return JID{}, fmt.Errorf("%w: %q", ErrMalformedJID, raw)
	}

	jid := JID{Server: server}
	jid.User, jid.Device, _ = strings.Cut(user, ":")
	return jid, nil
}

// IsGroup reports whether the JID belongs to a group chat.
func (j JID) IsGroup() bool {
	return j.Server == GroupServer
}

// String returns the canonical form with the device component stripped.
// Two captures of the same party on different devices yield the same string.
func (j JID) String() string {
	return j.User + "@" + j.Server
}

// Normalize parses raw and returns its canonical form.
func Normalize(raw string) (string, error) {
	jid, err := ParseJID(raw)
	if err != nil {
		return "", err
	}
	return jid.String(), nil
}

// SplitFrom splits a webhook "from" field. The field is either a composite
// "<sender_jid> in <chat_jid>" or a bare chat identifier; in the latter case
// the returned sender is empty.
func SplitFrom(from string) (sender, chat string) {
	if s, c, found := strings.Cut(from, fromSeparator); found {
		return strings.TrimSpace(s), strings.TrimSpace(c)
	}
	return "", strings.TrimSpace(from)
}
