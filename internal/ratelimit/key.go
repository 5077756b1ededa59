package ratelimit

import (
	"strconv"
	"strings"
)

const (
	userPrefix = "user:"
	ipPrefix   = "ip:"
)

// Identity partitions rate limit accounting: "user:<id>" or "ip:<address>".
type Identity string

// UserIdentity builds the identity for an authenticated user.
func UserIdentity(userID uint64) Identity {
	return Identity(userPrefix + strconv.FormatUint(userID, 10))
}

// IPIdentity builds the identity for an anonymous caller.
func IPIdentity(ip string) Identity {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	return Identity(ipPrefix + ip)
}

// Class reports which policy class the identity belongs to.
func (i Identity) Class() Class {
	if strings.HasPrefix(string(i), userPrefix) {
		return ClassAuthenticated
	}
	return ClassAnonymous
}

// String implements fmt.Stringer.
func (i Identity) String() string { return string(i) }
