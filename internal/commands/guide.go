package commands

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Terebi/pkg/iptv"
)

// Guide shows the current and next programme for a channel. With no argument
// it describes whatever is on air right now.
func (h *Handler) Guide(s *discordgo.Session, i *discordgo.InteractionCreate, query string) *discordgo.MessageEmbed {
	var channelID, channelName string

	if query == "" {
		media, startedAt, active := h.Manager.NowPlaying()
		if !active {
			return embed("📋 Guide", "Nothing is playing. Pass a channel name to look one up.", colorNeutral)
		}
		channelID = media.ID
		channelName = fmt.Sprintf("%s (on air since %s)", media.Name, startedAt.Format("15:04"))
	} else {
		ch, err := h.Store.FindChannel(query)
		if err != nil {
			if errors.Is(err, iptv.ErrChannelNotFound) {
				return errorEmbed(fmt.Sprintf("No channel matches **%s**.", query))
			}
			log.Printf("Error looking up channel %q: %v", query, err)
			return errorEmbed("Guide lookup failed.")
		}
		channelID = ch.ID
		channelName = ch.Name
	}

	current, next, err := h.Store.NowNext(channelID, time.Now())
	if err != nil {
		log.Printf("Error querying guide for %s: %v", channelID, err)
		return errorEmbed("Guide lookup failed.")
	}

	e := embed("📋 "+channelName, "", colorInfo)
	if current == nil && next == nil {
		e.Description = "No guide data for this channel."
		return e
	}
	if current != nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Now (until %s)", current.Stop.Local().Format("15:04")),
			Value: programmeLine(current),
		})
	}
	if next != nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Next (at %s)", next.Start.Local().Format("15:04")),
			Value: programmeLine(next),
		})
	}
	return e
}

func programmeLine(p *iptv.Programme) string {
	if p.Description == "" {
		return p.Title
	}
	desc := p.Description
	if len(desc) > 200 {
		desc = desc[:200] + "…"
	}
	return fmt.Sprintf("**%s**\n%s", p.Title, desc)
}
