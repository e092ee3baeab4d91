package iptv

import (
	"strings"
	"testing"
	"time"
)

const sampleGuide = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="bbc1">
    <display-name>BBC One</display-name>
  </channel>
  <channel id="bbc2">
    <display-name>BBC Two</display-name>
  </channel>
  <programme channel="bbc1" start="20260830190000 +0000" stop="20260830200000 +0000">
    <title>The News at Seven</title>
    <desc>Headlines and analysis.</desc>
  </programme>
  <programme channel="bbc1" start="20260830200000" stop="20260830210000">
    <title>Evening Drama</title>
  </programme>
  <programme channel="bbc2" start="garbage" stop="20260830210000 +0000">
    <title>Broken Entry</title>
  </programme>
</tv>`

func TestParseGuide(t *testing.T) {
	programmes, names, err := ParseGuide(strings.NewReader(sampleGuide))
	if err != nil {
		t.Fatalf("ParseGuide failed: %v", err)
	}

	if names["bbc1"] != "BBC One" || names["bbc2"] != "BBC Two" {
		t.Errorf("Display names not mapped: %v", names)
	}

	// The entry with a garbage timestamp is skipped, not fatal.
	if len(programmes) != 2 {
		t.Fatalf("Expected 2 programmes, got %d", len(programmes))
	}

	news := programmes[0]
	if news.ChannelID != "bbc1" || news.Title != "The News at Seven" {
		t.Errorf("Unexpected programme: %+v", news)
	}
	wantStart := time.Date(2026, 8, 30, 19, 0, 0, 0, time.UTC)
	if !news.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", news.Start, wantStart)
	}
	if !news.Stop.After(news.Start) {
		t.Error("Stop must be after start")
	}

	// Zone-less timestamps are parsed as UTC.
	drama := programmes[1]
	if !drama.Start.Equal(time.Date(2026, 8, 30, 20, 0, 0, 0, time.UTC)) {
		t.Errorf("Zone-less start parsed as %v", drama.Start)
	}
}

func TestParseGuideRejectsGarbage(t *testing.T) {
	if _, _, err := ParseGuide(strings.NewReader("{not xml}")); err == nil {
		t.Fatal("Expected an error for non-XML input")
	}
}
