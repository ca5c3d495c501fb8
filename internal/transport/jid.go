package transport

import "strings"

const (
	UserServer      = "s.whatsapp.net"
	LegacyServer    = "c.us"
	LIDServer       = "lid"
	GroupServer     = "g.us"
	BroadcastServer = "broadcast"
	NewsletterSrv   = "newsletter"
)

// EnsureJID turns a bare phone number into a user JID. Values that already
// carry a server part are returned unchanged.
func EnsureJID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "@") {
		return id
	}
	digits := DigitsOnly(id)
	if digits == "" {
		return ""
	}
	return digits + "@" + UserServer
}

// SplitJID returns the user and server parts. The device suffix (":12") is dropped.
func SplitJID(jid string) (user, server string) {
	user, server, _ = strings.Cut(jid, "@")
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user, server
}

// IsIndividual reports whether jid addresses a one-to-one conversation.
// Groups, broadcast lists, status updates and newsletters are excluded.
func IsIndividual(jid string) bool {
	if jid == "" {
		return false
	}
	user, server := SplitJID(jid)
	if user == "" {
		return false
	}
	switch server {
	case UserServer, LegacyServer, LIDServer, "":
		return true
	default:
		return false
	}
}

// PhoneFromJID derives a normalized phone number from an identity key.
func PhoneFromJID(jid string) string {
	user, _ := SplitJID(jid)
	return DigitsOnly(user)
}

// DigitsOnly strips everything except ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
