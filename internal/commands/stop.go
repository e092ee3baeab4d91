package commands

import (
	"log"

	"github.com/bwmarrin/discordgo"
)

// Stop halts the active stream. Stopping with nothing on air is not an error.
func (h *Handler) Stop(s *discordgo.Session, i *discordgo.InteractionCreate) *discordgo.MessageEmbed {
	media, _, active := h.Manager.NowPlaying()

	if err := h.Manager.Stop(); err != nil {
		log.Printf("Error stopping stream: %v", err)
		return errorEmbed("Failed to stop the stream.")
	}

	if !active {
		return embed("🔇 Nothing Playing", "No stream was active.", colorNeutral)
	}
	return embed("⏹️ Stopped", "Stopped streaming **"+media.Name+"**.", colorSuccess)
}

// Leave stops any stream and disconnects the streamer from voice.
func (h *Handler) Leave(s *discordgo.Session, i *discordgo.InteractionCreate) *discordgo.MessageEmbed {
	if err := h.Manager.Leave(); err != nil {
		log.Printf("Error leaving voice channel: %v", err)
		return errorEmbed("Failed to leave the voice channel.")
	}
	return embed("👋 Left", "Disconnected from voice.", colorSuccess)
}

// Join connects the streamer to the caller's voice channel without starting
// a stream.
func (h *Handler) Join(s *discordgo.Session, i *discordgo.InteractionCreate) *discordgo.MessageEmbed {
	voiceChannelID, ok := userVoiceChannel(s, i.GuildID, i.Member.User.ID)
	if !ok {
		return errorEmbed("You must be in a voice channel first.")
	}
	if err := h.Manager.Join(i.GuildID, voiceChannelID); err != nil {
		log.Printf("Error joining voice channel %s: %v", voiceChannelID, err)
		return errorEmbed("Could not join your voice channel.")
	}
	return embed("🔊 Joined", "Connected to your voice channel.", colorSuccess)
}

// Reset hard-resets the streamer client: stop everything and relogin.
func (h *Handler) Reset(s *discordgo.Session, i *discordgo.InteractionCreate) *discordgo.MessageEmbed {
	if err := h.Manager.Reset(); err != nil {
		log.Printf("Error resetting streamer: %v", err)
		return errorEmbed("Reset failed. Check the streamer token.")
	}
	return embed("🔄 Reset", "Streamer client reset. Nothing is playing.", colorSuccess)
}
