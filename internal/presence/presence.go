package presence

import (
	"log"

	"github.com/bwmarrin/discordgo"
)

// Manager keeps the bot's presence in sync with what is on air.
type Manager struct {
	session *discordgo.Session
}

// NewManager creates a presence manager for the command session.
func NewManager(session *discordgo.Session) *Manager {
	return &Manager{session: session}
}

// SetStreaming shows the channel currently being relayed.
func (pm *Manager) SetStreaming(channelName string) {
	if err := pm.session.UpdateWatchStatus(0, channelName); err != nil {
		log.Printf("Error updating presence: %v", err)
	}
}

// SetDefault reverts to the idle presence.
func (pm *Manager) SetDefault() {
	if err := pm.session.UpdateWatchStatus(0, "the guide"); err != nil {
		log.Printf("Error updating presence: %v", err)
	}
}
