package iptv

import (
	"encoding/xml"
	"io"
	"log"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// xmltvTime is the timestamp layout XMLTV guides use.
const xmltvTime = "20060102150405 -0700"

type xmltvDoc struct {
	XMLName    xml.Name         `xml:"tv"`
	Channels   []xmltvChannel   `xml:"channel"`
	Programmes []xmltvProgramme `xml:"programme"`
}

type xmltvChannel struct {
	ID          string `xml:"id,attr"`
	DisplayName string `xml:"display-name"`
}

type xmltvProgramme struct {
	Channel     string `xml:"channel,attr"`
	Start       string `xml:"start,attr"`
	Stop        string `xml:"stop,attr"`
	Title       string `xml:"title"`
	Description string `xml:"desc"`
}

// ParseGuide reads an XMLTV document and returns its programmes plus a map
// of guide channel ID to display name. Programmes with unparseable times are
// skipped rather than failing the whole guide.
func ParseGuide(r io.Reader) ([]Programme, map[string]string, error) {
	var doc xmltvDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, nil, errors.Wrap(err, "decode XMLTV guide")
	}

	names := make(map[string]string, len(doc.Channels))
	for _, ch := range doc.Channels {
		names[ch.ID] = ch.DisplayName
	}

	programmes := make([]Programme, 0, len(doc.Programmes))
	skipped := 0
	for _, p := range doc.Programmes {
		start, err := parseXMLTVTime(p.Start)
		if err != nil {
			skipped++
			continue
		}
		stop, err := parseXMLTVTime(p.Stop)
		if err != nil {
			skipped++
			continue
		}
		programmes = append(programmes, Programme{
			ChannelID:   p.Channel,
			Title:       strings.TrimSpace(p.Title),
			Description: strings.TrimSpace(p.Description),
			Start:       start,
			Stop:        stop,
		})
	}
	if skipped > 0 {
		log.Printf("Skipped %d guide entries with malformed timestamps", skipped)
	}
	return programmes, names, nil
}

func parseXMLTVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(xmltvTime, s); err == nil {
		return t, nil
	}
	// Some guides omit the zone; treat those as UTC.
	return time.Parse("20060102150405", s)
}
