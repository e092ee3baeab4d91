package iptv

import (
	"errors"
	"time"
)

// ErrChannelNotFound means a channel identifier resolved to nothing. It is
// surfaced to the command layer before any transport or pipeline work.
var ErrChannelNotFound = errors.New("channel not found")

// Channel is one playlist entry.
type Channel struct {
	ID    string // tvg-id, may be empty
	Name  string
	URL   string
	Logo  string
	Group string
	Radio bool
}

// Programme is one XMLTV guide entry.
type Programme struct {
	ChannelID   string
	Title       string
	Description string
	Start       time.Time
	Stop        time.Time
}
