package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/latoulicious/Terebi/internal/commands"
	"github.com/latoulicious/Terebi/internal/config"
	"github.com/latoulicious/Terebi/internal/handlers"
	"github.com/latoulicious/Terebi/internal/presence"
	"github.com/latoulicious/Terebi/pkg/iptv"
	"github.com/latoulicious/Terebi/pkg/streamer"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := iptv.OpenStore(cfg.CachePath)
	if err != nil {
		log.Fatalf("Failed to open metadata cache: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := iptv.NewRefresher(store, cfg.PlaylistURL, cfg.GuideURL, cfg.RefreshInterval)
	refresher.Start(ctx)

	// The command session handles interactions; the streamer session only
	// ever joins voice and carries media.
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatalf("Failed to create Discord session: %v", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	presenceManager := presence.NewManager(dg)

	transport := streamer.NewVoiceTransport(cfg.StreamerToken)
	pipeline := streamer.NewPipeline(streamer.DefaultConfig(), transport)
	manager := streamer.NewManager(transport, pipeline, streamer.NewMetrics(), streamer.ManagerConfig{
		IdleThreshold: cfg.IdleTimeout,
		OnStopped:     presenceManager.SetDefault,
	})

	resolver := iptv.NewResolver(store)
	commandHandler := commands.NewHandler(manager, resolver, store, presenceManager, cfg.OwnerID, refresher.Refresh)
	slashHandler := handlers.NewSlashHandler(commandHandler)
	dg.AddHandler(slashHandler.Handle)

	if err := dg.Open(); err != nil {
		log.Fatalf("Failed to open Discord session: %v", err)
	}
	defer dg.Close()

	if err := commands.RegisterSlashCommands(dg); err != nil {
		log.Fatalf("Failed to register slash commands: %v", err)
	}
	presenceManager.SetDefault()

	// Log in the streamer eagerly so a bad token shows up at boot rather
	// than on the first /tune.
	if err := manager.Login(); err != nil {
		log.Printf("Streamer login failed, will retry on first tune: %v", err)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("Metrics listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	log.Println("Bot is running. Press CTRL-C to exit.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	// Teardown order matters: stop the stream, log the streamer client out,
	// then close the command session.
	if err := manager.Logout(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}
