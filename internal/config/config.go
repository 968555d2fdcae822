package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/user/catalog-crawler/internal/crawler"
	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/internal/fetch"
)

// Config stores process-level settings read from the environment.
type Config struct {
	CrawlWorkers    int    `mapstructure:"CRAWL_WORKERS"`
	CrawlTimeout    int    `mapstructure:"CRAWL_TIMEOUT"`
	RenderTimeout   int    `mapstructure:"RENDER_TIMEOUT"`
	ProviderTimeout int    `mapstructure:"PROVIDER_TIMEOUT"`
	RunLimit        int    `mapstructure:"RUN_LIMIT"`
	SitesFile       string `mapstructure:"SITES_FILE"`
	SeedsFile       string `mapstructure:"SEEDS_FILE"`
	OutputDir       string `mapstructure:"OUTPUT_DIR"`
	OutputBase      string `mapstructure:"OUTPUT_BASE"`
	PostgresURL     string `mapstructure:"POSTGRES_URL"`
	SQLitePath      string `mapstructure:"SQLITE_PATH"`
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisStream     string `mapstructure:"REDIS_STREAM"`
	RedisMaxLen     int64  `mapstructure:"REDIS_MAXLEN"`
	OpsPort         string `mapstructure:"OPS_PORT"`
	Proxies         string `mapstructure:"PROXIES"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
}

// Flags registers the command-line overrides bound by Load.
func Flags(fs *pflag.FlagSet) {
	fs.Int("limit", 0, "records per site, 0 = unlimited")
	fs.String("sites", "", "site config file (yaml or json)")
	fs.String("seeds", "", "seed list file, one URL per line")
	fs.String("out", "", "output directory")
}

var flagKeys = map[string]string{
	"limit": "RUN_LIMIT",
	"sites": "SITES_FILE",
	"seeds": "SEEDS_FILE",
	"out":   "OUTPUT_DIR",
}

// Load reads configuration from .env, environment variables and, when fs is
// not nil, the flags registered by Flags.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// A missing .env is fine; the environment alone is enough.
	_ = v.ReadInConfig()

	v.SetDefault("CRAWL_WORKERS", 4)
	v.SetDefault("CRAWL_TIMEOUT", 25)
	v.SetDefault("RENDER_TIMEOUT", 45)
	v.SetDefault("PROVIDER_TIMEOUT", 60)
	v.SetDefault("RUN_LIMIT", 0)
	v.SetDefault("SITES_FILE", "config/sites.yaml")
	v.SetDefault("SEEDS_FILE", "config/seeds.txt")
	v.SetDefault("OUTPUT_DIR", "out")
	v.SetDefault("OUTPUT_BASE", "products")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("SQLITE_PATH", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_STREAM", "catalog:products")
	v.SetDefault("REDIS_MAXLEN", 100000)
	v.SetDefault("OPS_PORT", "")
	v.SetDefault("PROXIES", "")
	v.SetDefault("LOG_LEVEL", "info")

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.RunLimit < 0 {
		return nil, fmt.Errorf("limit must be >= 0, got %d", cfg.RunLimit)
	}
	return &cfg, nil
}

// Timeouts returns the per-strategy defaults used when a site sets none.
func (c *Config) Timeouts() fetch.Timeouts {
	t := fetch.DefaultTimeouts
	if c.ProviderTimeout > 0 {
		t.Provider = time.Duration(c.ProviderTimeout) * time.Second
	}
	if c.CrawlTimeout > 0 {
		t.Static = time.Duration(c.CrawlTimeout) * time.Second
	}
	if c.RenderTimeout > 0 {
		t.Render = time.Duration(c.RenderTimeout) * time.Second
	}
	return t
}

// ProxyList splits PROXIES on commas.
func (c *Config) ProxyList() []string {
	var out []string
	for _, p := range strings.Split(c.Proxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Sites is the parsed site configuration file.
type Sites struct {
	Sites             map[string]domain.SiteConfig
	Keywords          crawler.Keywords
	OutOfStockPhrases []string
}

// LoadSites reads the per-site configuration. Site keys are domains, so the
// key delimiter is "::" to keep dots inside a single key.
func LoadSites(path string) (*Sites, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read site config %s: %w", path, err)
	}

	out := &Sites{Sites: map[string]domain.SiteConfig{}}
	if err := v.UnmarshalKey("sites", &out.Sites); err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	if err := v.UnmarshalKey("filters", &out.Keywords); err != nil {
		return nil, fmt.Errorf("decode filters: %w", err)
	}
	out.OutOfStockPhrases = v.GetStringSlice("out_of_stock_phrases")

	pages := v.GetInt("limits::per_site_pages")
	for key, site := range out.Sites {
		renderKey := "sites::" + key + "::render"
		if v.IsSet(renderKey) && !v.GetBool(renderKey) {
			site.StaticHint = true
		}
		if site.MaxPages == 0 && pages > 0 {
			site.MaxPages = pages
		}
		out.Sites[key] = site
	}
	return out, nil
}

// LoadSeeds reads a seed list: one URL per line, "#" comments, list bullets
// stripped and a missing scheme completed with https.
func LoadSeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var seeds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		s = strings.TrimSpace(strings.TrimLeft(s, "-•* "))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, "http") {
			s = "https://" + s
		}
		seeds = append(seeds, s)
	}
	return seeds, sc.Err()
}
