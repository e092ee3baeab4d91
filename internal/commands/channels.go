package commands

import (
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Terebi/pkg/iptv"
)

// Discord caps embed fields at 25 and descriptions at 4096 characters;
// keep the listing comfortably inside both.
const maxListedChannels = 50

// Channels lists the cached lineup, optionally filtered to one group.
func (h *Handler) Channels(s *discordgo.Session, i *discordgo.InteractionCreate, group string) *discordgo.MessageEmbed {
	var channels []iptv.Channel
	var err error
	if group == "" {
		channels, err = h.Store.Channels()
	} else {
		channels, err = h.Store.ChannelsByGroup(group)
	}
	if err != nil {
		log.Printf("Error listing channels: %v", err)
		return errorEmbed("Could not read the channel list.")
	}
	if len(channels) == 0 {
		if group != "" {
			return embed("📺 Channels", fmt.Sprintf("No channels in group **%s**.", group), colorNeutral)
		}
		return embed("📺 Channels", "The lineup is empty. Wait for the next refresh or run `/refresh`.", colorNeutral)
	}

	var b strings.Builder
	lastGroup := ""
	listed := 0
	for _, ch := range channels {
		if listed >= maxListedChannels {
			break
		}
		if group == "" && ch.Group != lastGroup {
			fmt.Fprintf(&b, "\n**%s**\n", orUngrouped(ch.Group))
			lastGroup = ch.Group
		}
		marker := ""
		if ch.Radio {
			marker = " 📻"
		}
		fmt.Fprintf(&b, "• %s%s\n", ch.Name, marker)
		listed++
	}
	if len(channels) > listed {
		fmt.Fprintf(&b, "\n…and %d more. Filter by group to narrow it down.", len(channels)-listed)
	}

	title := "📺 Channels"
	if group != "" {
		title = "📺 Channels — " + group
	}
	return embed(title, b.String(), colorInfo)
}

func orUngrouped(group string) string {
	if group == "" {
		return "Ungrouped"
	}
	return group
}
