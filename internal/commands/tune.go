package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Terebi/pkg/iptv"
	"github.com/latoulicious/Terebi/pkg/streamer"
)

// Tune resolves a channel and starts relaying it into the caller's voice
// channel. Any previous stream is stopped first by the lifecycle manager.
func (h *Handler) Tune(s *discordgo.Session, i *discordgo.InteractionCreate, query string) *discordgo.MessageEmbed {
	voiceChannelID, ok := userVoiceChannel(s, i.GuildID, i.Member.User.ID)
	if !ok {
		return errorEmbed("You must be in a voice channel to tune in.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	channel, err := h.Resolver.Resolve(ctx, query)
	if err != nil {
		if errors.Is(err, iptv.ErrChannelNotFound) {
			return errorEmbed(fmt.Sprintf("No channel matches **%s**. Try `/channels` to browse the lineup.", query))
		}
		log.Printf("Error resolving channel %q: %v", query, err)
		return errorEmbed(fmt.Sprintf("Could not resolve **%s** to a playable stream.", query))
	}

	media := streamer.Media{
		ID:    channel.ID,
		Name:  channel.Name,
		URL:   channel.URL,
		Radio: channel.Radio,
	}
	if err := h.Manager.Start(media, i.GuildID, voiceChannelID); err != nil {
		log.Printf("Error starting stream for %s: %v", channel.Name, err)

		var authErr *streamer.AuthError
		var connErr *streamer.ConnectError
		switch {
		case errors.As(err, &authErr):
			return errorEmbed("The streamer account could not log in. Try `/reset`, or check its token.")
		case errors.As(err, &connErr):
			return errorEmbed("Could not join your voice channel. Check the bot's permissions and try again.")
		default:
			return errorEmbed(fmt.Sprintf("Failed to start streaming **%s**.", channel.Name))
		}
	}

	h.Presence.SetStreaming(channel.Name)

	e := embed("📺 Now Streaming", fmt.Sprintf("Tuned in to **%s**.", channel.Name), colorSuccess)
	if channel.Logo != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: channel.Logo}
	}
	if current, _, err := h.Store.NowNext(channel.ID, time.Now()); err == nil && current != nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "On now",
			Value: current.Title,
		})
	}
	return e
}
