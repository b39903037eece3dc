package config

import (
	"strings"
	"time"

	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Battle   BattleConfig   `mapstructure:"battle"`
	Fuzz     FuzzConfig     `mapstructure:"fuzz"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
	// AdminIPs restricts admin routes to these addresses or CIDRs; empty
	// allows any address holding the key.
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// BattleConfig holds the clauses and data location shared by every match.
type BattleConfig struct {
	TurnLimit     int           `mapstructure:"turn_limit"`
	EndlessBattle bool          `mapstructure:"endless_battle"`
	SleepClause   bool          `mapstructure:"sleep_clause"`
	FreezeClause  bool          `mapstructure:"freeze_clause"`
	DataDir       string        `mapstructure:"data_dir"` // "" = embedded tables
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	// Grace keeps finished matches readable in memory before eviction.
	Grace time.Duration `mapstructure:"grace"`
}

type FuzzConfig struct {
	Workers  int    `mapstructure:"workers" json:"workers"`
	Battles  int    `mapstructure:"battles" json:"battles"`
	MaxTurns int    `mapstructure:"max_turns" json:"max_turns"`
	Seed     uint64 `mapstructure:"seed" json:"seed"`
	Strategy string `mapstructure:"strategy" json:"strategy"`
}

// Rules converts the battle section into engine rules.
func (c BattleConfig) Rules() battle.Rules {
	return battle.Rules{
		EndlessBattle: c.EndlessBattle,
		SleepClause:   c.SleepClause,
		FreezeClause:  c.FreezeClause,
		TurnLimit:     c.TurnLimit,
	}
}

func setDefaults(v *viper.Viper) {
	rules := battle.DefaultRules()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/battles.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("battle.turn_limit", rules.TurnLimit)
	v.SetDefault("battle.endless_battle", rules.EndlessBattle)
	v.SetDefault("battle.sleep_clause", rules.SleepClause)
	v.SetDefault("battle.freeze_clause", rules.FreezeClause)
	v.SetDefault("battle.idle_timeout", "15m")
	v.SetDefault("battle.grace", "2m")
	v.SetDefault("fuzz.workers", 4)
	v.SetDefault("fuzz.battles", 1000)
	v.SetDefault("fuzz.max_turns", 1000)
	v.SetDefault("fuzz.seed", 1)
	v.SetDefault("fuzz.strategy", "random")
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GEN1SIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
