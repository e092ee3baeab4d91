package commands

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Terebi/internal/presence"
	"github.com/latoulicious/Terebi/pkg/iptv"
	"github.com/latoulicious/Terebi/pkg/streamer"
)

const (
	colorSuccess = 0x00ff00
	colorError   = 0xff0000
	colorInfo    = 0x3498db
	colorNeutral = 0x808080
)

// resolveTimeout bounds channel resolution, which may hit YouTube.
const resolveTimeout = 30 * time.Second

// Handler carries the collaborators every command needs. Commands receive
// the interaction after the slash handler has deferred it and return the
// embed to send as followup.
type Handler struct {
	Manager  *streamer.Manager
	Resolver *iptv.Resolver
	Store    *iptv.Store
	Presence *presence.Manager
	OwnerID  string

	// RefreshFunc triggers an immediate metadata refresh (owner only).
	RefreshFunc func(ctx context.Context) error
}

// NewHandler wires the command handler.
func NewHandler(manager *streamer.Manager, resolver *iptv.Resolver, store *iptv.Store, pm *presence.Manager, ownerID string, refresh func(ctx context.Context) error) *Handler {
	return &Handler{
		Manager:     manager,
		Resolver:    resolver,
		Store:       store,
		Presence:    pm,
		OwnerID:     ownerID,
		RefreshFunc: refresh,
	}
}

func embed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func errorEmbed(description string) *discordgo.MessageEmbed {
	return embed("❌ Error", description, colorError)
}

// userVoiceChannel finds the voice channel the invoking user is in.
func userVoiceChannel(s *discordgo.Session, guildID, userID string) (string, bool) {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return "", false
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, true
		}
	}
	return "", false
}
