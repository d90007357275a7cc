package config

import (
	"context"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Addr            string        `mapstructure:"addr" env:"HTTP_ADDR,default=:5000"`
		PublicBaseURL   string        `mapstructure:"public_base_url" env:"PUBLIC_BASE_URL"`
		AllowedOrigins  []string      `mapstructure:"allowed_origins" env:"ALLOWED_ORIGINS,default=*"`
		APIKey          string        `mapstructure:"api_key" env:"API_KEY"`
		TrustedProxies  []string      `mapstructure:"trusted_proxies" env:"HTTP_TRUSTED_PROXIES"`
		MaxBodyBytes    int64         `mapstructure:"max_body_bytes" env:"HTTP_MAX_BODY_BYTES,default=1048576"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT,default=10s"`
	} `mapstructure:"http"`
	RateLimit struct {
		Requests   int64         `mapstructure:"requests" env:"RATE_LIMIT_REQUESTS,default=10"`
		Window     time.Duration `mapstructure:"window" env:"RATE_LIMIT_WINDOW,default=1m"`
		RedisURL   string        `mapstructure:"redis_url" env:"RATE_LIMIT_REDIS_URL"`
		MaxClients int           `mapstructure:"max_clients" env:"RATE_LIMIT_MAX_CLIENTS,default=10000"`
	} `mapstructure:"rate_limit"`
	Extractor struct {
		Binary        string        `mapstructure:"binary" env:"YTDLP_BINARY,default=yt-dlp"`
		CacheDir      string        `mapstructure:"cache_dir" env:"YTDLP_CACHE_DIR,default=/tmp/yt-dlp"`
		Workers       int64         `mapstructure:"workers" env:"EXTRACTOR_WORKERS,default=4"`
		Timeout       time.Duration `mapstructure:"timeout" env:"EXTRACTOR_TIMEOUT,default=60s"`
		MaxAttempts   uint          `mapstructure:"max_attempts" env:"EXTRACTOR_MAX_ATTEMPTS,default=3"`
		RetryDelay    time.Duration `mapstructure:"retry_delay" env:"EXTRACTOR_RETRY_DELAY,default=1s"`
		MaxRetryDelay time.Duration `mapstructure:"max_retry_delay" env:"EXTRACTOR_MAX_RETRY_DELAY,default=8s"`
		SocketTimeout time.Duration `mapstructure:"socket_timeout" env:"EXTRACTOR_SOCKET_TIMEOUT,default=30s"`
	} `mapstructure:"extractor"`
	Merge struct {
		Enabled      bool          `mapstructure:"enabled" env:"MERGE_ENABLED,default=false"`
		FFmpegBinary string        `mapstructure:"ffmpeg_binary" env:"FFMPEG_BINARY,default=ffmpeg"`
		MediaDir     string        `mapstructure:"media_dir" env:"MERGE_MEDIA_DIR,default=/tmp/video-api-media"`
		TTL          time.Duration `mapstructure:"ttl" env:"MERGE_TTL,default=30m"`
	} `mapstructure:"merge"`
	Log struct {
		Debug bool `mapstructure:"debug" env:"LOG_DEBUG,default=false"`
		JSON  bool `mapstructure:"json" env:"LOG_JSON,default=false"`
	} `mapstructure:"log"`
}

// NewConfig reads configuration from the environment, or from the yaml file
// at configPath when one is given. Defaults apply in both cases.
func NewConfig(ctx context.Context, configPath string) (*Config, error) {
	var conf Config
	if len(configPath) == 0 {
		if err := envconfig.Process(ctx, &conf); err != nil {
			return nil, errors.Wrap(err, "failed to process config environment variables")
		}
		return validated(&conf)
	}

	if err := envconfig.ProcessWith(ctx, &conf, envconfig.MapLookuper(map[string]string{})); err != nil {
		return nil, errors.Wrap(err, "failed to apply config defaults")
	}

	f, err := os.Open(configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open config file '%s'", configPath)
	}
	defer f.Close()

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(f); err != nil {
		return nil, errors.Wrap(err, "failed to read config yaml file")
	}
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Wrap(err, "failed to decode config yaml file")
	}

	return validated(&conf)
}

func validated(conf *Config) (*Config, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return conf, nil
}

func (c *Config) Validate() error {
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}

	switch {
	case c.Extractor.Timeout <= 0:
		return errors.New("extractor timeout must be positive")
	case c.Extractor.MaxAttempts < 1:
		return errors.New("extractor max attempts must be at least 1")
	case c.Extractor.Workers < 1:
		return errors.New("extractor workers must be at least 1")
	case c.Extractor.RetryDelay < 0 || c.Extractor.MaxRetryDelay < 0:
		return errors.New("extractor retry delays must not be negative")
	case c.RateLimit.Requests < 0:
		return errors.New("rate limit requests must not be negative")
	case c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0:
		return errors.New("rate limit window must be positive")
	case c.RateLimit.MaxClients < 1:
		return errors.New("rate limit max clients must be at least 1")
	case c.Merge.Enabled && c.HTTP.PublicBaseURL == "":
		return errors.New("public base url is required when merging is enabled")
	case c.Merge.Enabled && c.Merge.TTL <= 0:
		return errors.New("merge ttl must be positive")
	}

	return nil
}

// TrustedProxyPrefixes parses http.trusted_proxies. Entries are CIDRs or
// bare addresses; forwarded headers are honoured only from these peers.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.HTTP.TrustedProxies))
	for _, raw := range c.HTTP.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid trusted proxy '%s'", raw)
			}
			out = append(out, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid trusted proxy '%s'", raw)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return out, nil
}
