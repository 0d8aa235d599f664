// Package main provides the entry point for the music bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/KrystianJachna/DiscordMusicBot/internal/bot"
	"github.com/KrystianJachna/DiscordMusicBot/internal/cache"
	"github.com/KrystianJachna/DiscordMusicBot/internal/resolver"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string

	rootCmd = &cobra.Command{
		Use:   "musicbot",
		Short: "Play YouTube audio in Discord voice channels",
		Long: paragraph(
			fmt.Sprintf("\nPlay YouTube audio in Discord voice channels, %s!", keyword("one queue per server")),
		),
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("config") && cmd.Name() != configCmd.Name() {
				viper.SetConfigFile(configFile)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("unable to read config file: %w", err)
				}
			}
			if viper.GetBool("debug") {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
		RunE: execute,
	}
)

// applyOverrides lets config file values and flags take precedence over the
// environment.
func applyOverrides(cfg *bot.Config) {
	if viper.IsSet("cookies") {
		cfg.CookiesPath = viper.GetString("cookies")
	}
	if viper.IsSet("cache.size") {
		cfg.CacheSize = viper.GetInt("cache.size")
	}
	if viper.IsSet("ffmpeg") {
		cfg.FFmpegPath = viper.GetString("ffmpeg")
	}
	if viper.IsSet("bitrate") {
		cfg.Bitrate = viper.GetInt("bitrate")
	}
	if viper.IsSet("guild") {
		cfg.GuildID = viper.GetString("guild")
	}
}

func snapshotPath() string {
	if p := viper.GetString("cache.snapshot"); p != "" {
		if p == "off" {
			return ""
		}
		return p
	}
	dir, err := gap.NewScope(gap.User, "musicbot").CacheDir()
	if err != nil {
		log.Warn("Could not find cache directory, track cache will not persist", "err", err)
		return ""
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
		log.Warn("Could not create cache directory, track cache will not persist", "err", err)
		return ""
	}
	return filepath.Join(dir, "tracks.snapshot")
}

func cacheConfig(cfg bot.Config) cache.Config {
	c := cache.DefaultConfig()
	c.URLCapacity = cfg.CacheSize
	c.QueryCapacity = max(cfg.CacheSize/2, 1)
	if n := viper.GetInt("cache.query_size"); n > 0 {
		c.QueryCapacity = min(n, c.URLCapacity)
	}
	c.SnapshotPath = snapshotPath()
	if l := viper.GetInt("cache.compression"); l > 0 {
		c.CompressionLevel = l
	}
	if d := viper.GetDuration("cache.prune_interval"); d > 0 {
		c.PruneInterval = d
	}
	return c
}

func execute(cmd *cobra.Command, _ []string) error {
	cfg, err := bot.LoadConfig(viper.GetStringSlice("env_file")...)
	if err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}
	applyOverrides(&cfg)

	mgr, err := cache.NewManager(cacheConfig(cfg))
	if err != nil {
		return fmt.Errorf("unable to create track cache: %w", err)
	}

	yt := resolver.NewYtDlp(resolver.Config{
		CookiesPath:       cfg.CookiesPath,
		Proxy:             viper.GetString("resolver.proxy"),
		RequestsPerMinute: viper.GetInt("resolver.requests_per_minute"),
		MaxPlaylistItems:  viper.GetInt("resolver.max_playlist_items"),
		Lookup:            mgr.Cache().Lookup,
	})

	var watcher *resolver.CookieWatcher
	if cfg.CookiesPath != "" {
		watcher, err = resolver.WatchCookies(cfg.CookiesPath, yt)
		if err != nil {
			log.Warn("Could not watch cookies file", "path", cfg.CookiesPath, "err", err)
		}
	}

	b, err := bot.New(cfg, resolver.NewCached(yt, mgr.Cache()))
	if err != nil {
		_ = mgr.Close()
		return fmt.Errorf("unable to create bot: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.Open(ctx); err != nil {
		_ = mgr.Close()
		return fmt.Errorf("unable to connect to discord: %w", err)
	}
	log.Info("Bot is running, press Ctrl+C to stop", "version", Version)

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("shutdown_timeout"))
	defer cancel()

	var errs []error
	errs = append(errs, b.Close(shutdownCtx))
	if watcher != nil {
		errs = append(errs, watcher.Close())
	}
	stats := mgr.Cache().Stats()
	errs = append(errs, mgr.Close())
	log.Info("Track cache closed", "tracks", stats.Tracks, "hit_rate", stats.HitRate, "cleanup_runs", mgr.Stats()["cleanup_runs"])

	return errors.Join(errs...)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.Flags().StringSlice("env-file", []string{".env"}, "dotenv files to load before reading the environment")
	rootCmd.Flags().String("guild", "", "register slash commands in this guild only")
	rootCmd.Flags().String("cookies", "", "cookies file for age restricted videos")
	rootCmd.Flags().String("ffmpeg", "", "path to the ffmpeg binary")
	rootCmd.Flags().Int("bitrate", 0, "opus bitrate in kbps")
	rootCmd.Flags().Int("cache-size", 0, "number of resolved tracks to keep")
	rootCmd.Flags().String("cache-snapshot", "", `track cache snapshot path ("off" to disable)`)
	rootCmd.Flags().Int("requests-per-minute", 30, "yt-dlp requests per minute")
	rootCmd.Flags().Int("max-playlist-items", 100, "maximum tracks taken from a playlist")
	rootCmd.Flags().String("proxy", "", "proxy passed to yt-dlp")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("env_file", rootCmd.Flags().Lookup("env-file"))
	_ = viper.BindPFlag("guild", rootCmd.Flags().Lookup("guild"))
	_ = viper.BindPFlag("cookies", rootCmd.Flags().Lookup("cookies"))
	_ = viper.BindPFlag("ffmpeg", rootCmd.Flags().Lookup("ffmpeg"))
	_ = viper.BindPFlag("bitrate", rootCmd.Flags().Lookup("bitrate"))
	_ = viper.BindPFlag("cache.size", rootCmd.Flags().Lookup("cache-size"))
	_ = viper.BindPFlag("cache.snapshot", rootCmd.Flags().Lookup("cache-snapshot"))
	_ = viper.BindPFlag("resolver.requests_per_minute", rootCmd.Flags().Lookup("requests-per-minute"))
	_ = viper.BindPFlag("resolver.max_playlist_items", rootCmd.Flags().Lookup("max-playlist-items"))
	_ = viper.BindPFlag("resolver.proxy", rootCmd.Flags().Lookup("proxy"))

	viper.SetDefault("env_file", []string{".env"})
	viper.SetDefault("shutdown_timeout", 15*time.Second)
	viper.SetDefault("cache.compression", 3)
	viper.SetDefault("cache.prune_interval", 30*time.Minute)
	viper.SetDefault("log.to_file", false)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "musicbot")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "musicbot")}, dirs...)
	}

	if c := os.Getenv("MUSICBOT_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("musicbot")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("musicbot")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "musicbot.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
