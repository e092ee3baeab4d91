package commands

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// About reports what is on air and how big the cached lineup is.
func (h *Handler) About(s *discordgo.Session, i *discordgo.InteractionCreate) *discordgo.MessageEmbed {
	e := embed("📡 Terebi", "Relays IPTV channels into voice. `/tune <channel>` to start.", colorInfo)

	if media, startedAt, active := h.Manager.NowPlaying(); active {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "On air",
			Value: fmt.Sprintf("%s (for %s)", media.Name, time.Since(startedAt).Round(time.Second)),
		})
	}
	if count, err := h.Store.ChannelCount(); err == nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "Lineup",
			Value: fmt.Sprintf("%d channels cached", count),
		})
	}
	return e
}
