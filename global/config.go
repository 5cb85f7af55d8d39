package global

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"PulseChat/tools/ids"
)

// Config is the whole process configuration, loaded once at bootstrap.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Nats      NatsConfig      `yaml:"nats"`
	Kafka     KafkaConfig     `yaml:"kafka"`
}

type GatewayConfig struct {
	ID           string `yaml:"id"`             // unique per process, stamped on relay envelopes
	HTTPAddr     string `yaml:"http_addr"`      // gin listen address
	GRPCAddr     string `yaml:"grpc_addr"`      // health service
	NodeID       int64  `yaml:"node_id"`        // snowflake node
	SendQueue    int    `yaml:"send_queue"`     // per-connection outbound buffer
	MaxFrameSize int64  `yaml:"max_frame_size"` // read limit in bytes
}

type AuthConfig struct {
	Secret string   `yaml:"secret"`
	TTL    Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	Window Duration `yaml:"window"`
	Cap    int      `yaml:"cap"`
	Sweep  Duration `yaml:"sweep"`
}

type RedisConfig struct {
	Addr        string   `yaml:"addr"`
	Password    string   `yaml:"password"`
	DB          int      `yaml:"db"`
	PresenceTTL Duration `yaml:"presence_ttl"`
}

type MongoConfig struct {
	URI         string `yaml:"uri"`
	Database    string `yaml:"database"`
	MaxPoolSize uint64 `yaml:"max_pool_size"`
}

type NatsConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Enabled bool     `yaml:"enabled"`
}

// Load reads path (when non-empty), applies env overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GATEWAY_ID"); v != "" {
		c.Gateway.ID = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.Gateway.HTTPAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Nats.URL = v
		c.Nats.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.Secret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Gateway.ID == "" {
		c.Gateway.ID = "msg_gw-1"
	}
	if c.Gateway.HTTPAddr == "" {
		c.Gateway.HTTPAddr = ":8080"
	}
	if c.Gateway.GRPCAddr == "" {
		c.Gateway.GRPCAddr = ":50052"
	}
	if c.Gateway.NodeID <= 0 {
		c.Gateway.NodeID = 1
	}
	if c.Gateway.SendQueue <= 0 {
		c.Gateway.SendQueue = 256
	}
	if c.Gateway.MaxFrameSize <= 0 {
		c.Gateway.MaxFrameSize = 64 * 1024
	}
	if c.Auth.TTL <= 0 {
		c.Auth.TTL = Duration(2 * time.Hour)
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = Duration(time.Minute)
	}
	if c.RateLimit.Cap <= 0 {
		c.RateLimit.Cap = 100
	}
	if c.RateLimit.Sweep <= 0 {
		c.RateLimit.Sweep = Duration(5 * time.Minute)
	}
	if c.Redis.PresenceTTL <= 0 {
		c.Redis.PresenceTTL = Duration(90 * time.Second)
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://127.0.0.1:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "pulsechat"
	}
	if c.Mongo.MaxPoolSize == 0 {
		c.Mongo.MaxPoolSize = 20
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "pulsechat.dm.offline"
	}
}

// ConfigIds wires the snowflake node id; call before the first Generate.
func ConfigIds(nodeID int64) {
	ids.SetNodeID(nodeID)
}

func (c *Config) JwtSecret() []byte {
	if c.Auth.Secret == "" {
		return []byte("dev-only-secret-change-me")
	}
	return []byte(c.Auth.Secret)
}
