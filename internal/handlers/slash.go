package handlers

import (
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Terebi/internal/commands"
)

// SlashHandler routes slash command interactions to the command layer.
type SlashHandler struct {
	commands *commands.Handler
}

// NewSlashHandler creates the interaction handler.
func NewSlashHandler(h *commands.Handler) *SlashHandler {
	return &SlashHandler{commands: h}
}

// Handle is registered on the command session for InteractionCreate events.
// Every command is acknowledged immediately and answered as a followup, so a
// slow resolve or join can never leave the interaction hanging.
func (sh *SlashHandler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.Member == nil || i.Member.User == nil || i.Member.User.Bot {
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.Printf("Error acknowledging interaction: %v", err)
		return
	}

	data := i.ApplicationCommandData()
	var response *discordgo.MessageEmbed

	switch data.Name {
	case "tune":
		response = sh.commands.Tune(s, i, stringOption(data, "channel"))
	case "stop":
		response = sh.commands.Stop(s, i)
	case "guide":
		response = sh.commands.Guide(s, i, stringOption(data, "channel"))
	case "channels":
		response = sh.commands.Channels(s, i, stringOption(data, "group"))
	case "join":
		response = sh.commands.Join(s, i)
	case "leave":
		response = sh.commands.Leave(s, i)
	case "reset":
		response = sh.commands.Reset(s, i)
	case "refresh":
		response = sh.commands.Refresh(s, i)
	case "about":
		response = sh.commands.About(s, i)
	default:
		log.Printf("Unknown slash command: %s", data.Name)
		return
	}

	if response == nil {
		return
	}
	_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{response},
	})
	if err != nil {
		log.Printf("Error sending followup for /%s: %v", data.Name, err)
	}
}

func stringOption(data discordgo.ApplicationCommandInteractionData, name string) string {
	for _, opt := range data.Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}
