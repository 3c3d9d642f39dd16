package main

import (
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/takutakahashi/notify-relay/pkg/broadcast"
	"github.com/takutakahashi/notify-relay/pkg/config"
	"github.com/takutakahashi/notify-relay/pkg/imagesource"
	"github.com/takutakahashi/notify-relay/pkg/mediastore"
	"github.com/takutakahashi/notify-relay/pkg/registry"
	"github.com/takutakahashi/notify-relay/pkg/server"
	"github.com/takutakahashi/notify-relay/pkg/transport"
)

var (
	port    int
	cfg     string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "notify-relay",
	Short: "Broadcast push notification relay",
	Long:  "A web push relay that fans messages out to every registered subscription and serves short-lived media tokens",
	Run:   runServer,
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&cfg, "config", "c", "config.json", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Bind flags to viper
	if err := viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port")); err != nil {
		log.Printf("Failed to bind port flag: %v", err)
	}
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		log.Printf("Failed to bind config flag: %v", err)
	}
	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		log.Printf("Failed to bind verbose flag: %v", err)
	}
}

func runServer(cmd *cobra.Command, args []string) {
	if verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	conf, err := config.LoadConfig(cfg)
	if err != nil {
		log.Printf("Failed to load config from %s, using defaults: %v", cfg, err)
		conf = config.DefaultConfig()
	}
	if port != 0 {
		conf.Port = port
	}

	vapid := transport.VAPIDKeys{
		PublicKey:  conf.VAPID.PublicKey,
		PrivateKey: conf.VAPID.PrivateKey,
	}
	if vapid.PublicKey == "" || vapid.PrivateKey == "" {
		vapid, err = transport.GenerateVAPIDKeys()
		if err != nil {
			log.Fatalf("Failed to generate VAPID keys: %v", err)
		}
		log.Printf("Generated ephemeral VAPID key pair; subscriptions will not survive a restart")
	}

	reg := registry.New()
	media := mediastore.New(time.Duration(conf.Media.TTLSeconds) * time.Second)
	sender := transport.NewWebPushSender(vapid, conf.VAPID.Subscriber)
	images := imagesource.New("")
	dispatcher := broadcast.NewDispatcher(reg, media, sender, images, conf.Media.MaxUploadBytes)

	srv := server.New(conf, reg, media, dispatcher, vapid, verbose)

	log.Printf("Starting notify-relay on port %d", conf.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
