package iptv

import (
	"strings"
	"testing"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-id="bbc1" tvg-logo="http://logos/bbc1.png" group-title="UK",BBC One
http://example.com/bbc1.m3u8

#EXTINF:-1 tvg-id="r4" radio="true" group-title="UK",BBC Radio 4
http://example.com/radio4
#EXTINF:-1 group-title="Radio Internacional",Some Station
http://example.com/station
#EXTGRP:ignored
#EXTINF:-1 tvg-id="orphan",No URL Follows
#EXTINF:-1,Plain Channel
http://example.com/plain
`

func TestParsePlaylist(t *testing.T) {
	channels, err := ParsePlaylist(strings.NewReader(samplePlaylist))
	if err != nil {
		t.Fatalf("ParsePlaylist failed: %v", err)
	}
	if len(channels) != 4 {
		t.Fatalf("Expected 4 channels, got %d", len(channels))
	}

	bbc := channels[0]
	if bbc.ID != "bbc1" || bbc.Name != "BBC One" || bbc.URL != "http://example.com/bbc1.m3u8" {
		t.Errorf("Unexpected first channel: %+v", bbc)
	}
	if bbc.Logo != "http://logos/bbc1.png" || bbc.Group != "UK" {
		t.Errorf("Attributes not parsed: %+v", bbc)
	}
	if bbc.Radio {
		t.Error("BBC One is not a radio channel")
	}

	if !channels[1].Radio {
		t.Error("radio=\"true\" attribute should mark the channel as radio")
	}
	if !channels[2].Radio {
		t.Error("A radio group title should mark the channel as radio")
	}

	plain := channels[3]
	if plain.Name != "Plain Channel" || plain.ID != "" {
		t.Errorf("Unexpected attribute-less channel: %+v", plain)
	}
}

func TestParsePlaylistRejectsNonM3U(t *testing.T) {
	if _, err := ParsePlaylist(strings.NewReader("<html>not a playlist</html>")); err == nil {
		t.Fatal("Expected an error for a non-M3U document")
	}
}

func TestParsePlaylistEmpty(t *testing.T) {
	channels, err := ParsePlaylist(strings.NewReader("#EXTM3U\n"))
	if err != nil {
		t.Fatalf("ParsePlaylist failed: %v", err)
	}
	if len(channels) != 0 {
		t.Errorf("Expected no channels, got %d", len(channels))
	}
}
