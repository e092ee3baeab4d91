package commands

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Refresh re-fetches the playlist and guide immediately. Owner only.
func (h *Handler) Refresh(s *discordgo.Session, i *discordgo.InteractionCreate) *discordgo.MessageEmbed {
	if h.OwnerID == "" || i.Member.User.ID != h.OwnerID {
		return errorEmbed("You don't have permission to use this command.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := h.RefreshFunc(ctx); err != nil {
		log.Printf("Manual refresh failed: %v", err)
		return errorEmbed("Refresh failed; the previous cache is still in place.")
	}

	count, err := h.Store.ChannelCount()
	if err != nil {
		count = 0
	}
	return embed("🔄 Refreshed", fmt.Sprintf("Cached **%d** channels.", count), colorSuccess)
}
