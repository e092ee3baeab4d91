package commands

import (
	"log"

	"github.com/bwmarrin/discordgo"
)

// RegisterSlashCommands registers all slash commands globally
func RegisterSlashCommands(s *discordgo.Session) error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "tune",
			Description: "Tune in to an IPTV channel in your voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "channel",
					Description: "Channel name or tvg-id",
					Required:    true,
				},
			},
		},
		{
			Name:        "stop",
			Description: "Stop the current stream",
		},
		{
			Name:        "guide",
			Description: "Show what's on now and next",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "channel",
					Description: "Channel to look up (defaults to what's playing)",
					Required:    false,
				},
			},
		},
		{
			Name:        "channels",
			Description: "List the channel lineup",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "group",
					Description: "Only show channels in this group",
					Required:    false,
				},
			},
		},
		{
			Name:        "join",
			Description: "Bring the streamer into your voice channel",
		},
		{
			Name:        "leave",
			Description: "Disconnect the streamer from voice",
		},
		{
			Name:        "reset",
			Description: "Hard-reset the streamer client",
		},
		{
			Name:        "refresh",
			Description: "Re-fetch the playlist and guide now (owner only)",
		},
		{
			Name:        "about",
			Description: "About this bot",
		},
	}

	for _, cmd := range commands {
		if _, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd); err != nil {
			return err
		}
		log.Printf("Registered slash command: /%s", cmd.Name)
	}
	return nil
}
