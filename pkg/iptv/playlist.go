package iptv

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var extinfAttr = regexp.MustCompile(`([a-zA-Z0-9-]+)="([^"]*)"`)

// ParsePlaylist reads an M3U/M3U8 playlist and returns its channels.
// Unknown directives and blank lines are skipped; an #EXTINF line with no
// following URL is dropped.
func ParsePlaylist(r io.Reader) ([]Channel, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var channels []Channel
	var pending *Channel

	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			if !strings.HasPrefix(line, "#EXTM3U") {
				return nil, errors.New("not an M3U playlist: missing #EXTM3U header")
			}
			continue
		}

		if strings.HasPrefix(line, "#EXTINF:") {
			ch := parseExtinf(line)
			pending = &ch
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if pending == nil {
			continue
		}
		pending.URL = line
		channels = append(channels, *pending)
		pending = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read playlist")
	}
	return channels, nil
}

// parseExtinf pulls the attributes and display name out of an #EXTINF line,
// e.g. #EXTINF:-1 tvg-id="bbc1" group-title="UK",BBC One
func parseExtinf(line string) Channel {
	var ch Channel

	body := strings.TrimPrefix(line, "#EXTINF:")
	name := body
	if idx := strings.LastIndex(body, ","); idx >= 0 {
		name = strings.TrimSpace(body[idx+1:])
		body = body[:idx]
	}
	ch.Name = name

	for _, m := range extinfAttr.FindAllStringSubmatch(body, -1) {
		key, value := strings.ToLower(m[1]), m[2]
		switch key {
		case "tvg-id":
			ch.ID = value
		case "tvg-name":
			if ch.Name == "" {
				ch.Name = value
			}
		case "tvg-logo":
			ch.Logo = value
		case "group-title":
			ch.Group = value
		case "radio":
			ch.Radio = strings.EqualFold(value, "true")
		}
	}
	if !ch.Radio && strings.Contains(strings.ToLower(ch.Group), "radio") {
		ch.Radio = true
	}
	return ch
}
