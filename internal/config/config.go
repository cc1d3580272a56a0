package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zhouzirui/campus-assistant/backend/internal/logging"
	"github.com/zhouzirui/campus-assistant/backend/internal/store"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       logging.Config  `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Widget    WidgetConfig    `mapstructure:"widget"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Addr 由 Port 推导
	Addr string `mapstructure:"-"`
}

// StoreConfig 描述会话与消息的存储驱动。
type StoreConfig struct {
	Driver store.Driver      `mapstructure:"driver"`
	Redis  RedisStoreConfig  `mapstructure:"redis"`
	SQLite SQLiteStoreConfig `mapstructure:"sqlite"`
}

type RedisStoreConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

type SQLiteStoreConfig struct {
	Path string `mapstructure:"path"`
}

// KnowledgeConfig 描述知识库文件，为空时使用内置数据。
type KnowledgeConfig struct {
	Path string `mapstructure:"path"`
}

// WidgetConfig 描述流式回复的展示行为。
type WidgetConfig struct {
	TypingDelay time.Duration `mapstructure:"typing_delay"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load 从 configDir（为空时为 ./ 与 ./config）下的 config.yaml 和环境变量加载配置。
// 配置文件不存在不算错误。
func Load(configDir string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	_ = v.BindEnv("server.port", "PORT", "SERVER_PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "campus-assistant")
	v.SetDefault("store.driver", string(store.DriverMemory))
	v.SetDefault("store.redis.address", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.ttl", "0s")
	v.SetDefault("store.redis.prefix", "chatbot")
	v.SetDefault("store.sqlite.path", "chatbot.db")
	v.SetDefault("knowledge.path", "")
	v.SetDefault("widget.typing_delay", "1500ms")
	v.SetDefault("cors.allowed_origins", []string{"*"})
}

func (c *Config) normalize() error {
	addr, err := listenAddr(c.Server.Port)
	if err != nil {
		return err
	}
	c.Server.Addr = addr

	c.Store.Driver = store.Driver(strings.ToLower(strings.TrimSpace(string(c.Store.Driver))))
	switch c.Store.Driver {
	case "":
		c.Store.Driver = store.DriverMemory
	case store.DriverMemory:
	case store.DriverRedis:
		if strings.TrimSpace(c.Store.Redis.Address) == "" {
			return fmt.Errorf("store.redis.address is required for the redis driver")
		}
	case store.DriverSQLite:
		if strings.TrimSpace(c.Store.SQLite.Path) == "" {
			return fmt.Errorf("store.sqlite.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid store.driver value %q", c.Store.Driver)
	}

	if c.Store.Redis.TTL < 0 {
		return fmt.Errorf("invalid store.redis.ttl value %s", c.Store.Redis.TTL)
	}
	if c.Widget.TypingDelay < 0 {
		return fmt.Errorf("invalid widget.typing_delay value %s", c.Widget.TypingDelay)
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	origins := c.CORS.AllowedOrigins[:0]
	for _, o := range c.CORS.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.CORS.AllowedOrigins = origins

	return nil
}

// listenAddr 解析服务器监听地址，允许 "8080"、":8080" 或 "127.0.0.1:8080"。
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	if strings.Contains(port, ":") {
		return port, nil
	}

	return ":" + port, nil
}
