package bot

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is read from the environment, optionally seeded from .env files.
type Config struct {
	Token   string `env:"DISCORD_TOKEN,required,unset"`
	GuildID string `env:"DISCORD_GUILD_ID"` // register commands in one guild only

	CookiesPath string `env:"COOKIES_PATH" envDefault:"cookies.txt"`
	CacheSize   int    `env:"CACHE_SIZE" envDefault:"256"`

	NoUsersDisconnectTimeout time.Duration `env:"NO_USERS_DISCONNECT_TIMEOUT" envDefault:"1m"`
	NoMusicDisconnectTimeout time.Duration `env:"NO_MUSIC_DISCONNECT_TIMEOUT" envDefault:"5m"`
	InactivityCycles         int           `env:"INACTIVITY_CYCLES" envDefault:"1"`

	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	Bitrate    int    `env:"OPUS_BITRATE" envDefault:"128"`
}

// LoadConfig loads the given .env files, or ".env" when none are given, and
// parses the environment. Missing files are ignored.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.CacheSize <= 0 {
		return fmt.Errorf("CACHE_SIZE must be positive, got %d", c.CacheSize)
	}
	if c.NoUsersDisconnectTimeout < 0 || c.NoMusicDisconnectTimeout < 0 {
		return errors.New("disconnect timeouts must not be negative")
	}
	if c.Bitrate < 8 || c.Bitrate > 512 {
		return fmt.Errorf("OPUS_BITRATE must be between 8 and 512, got %d", c.Bitrate)
	}
	return nil
}
