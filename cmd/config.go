package cmd

import (
	"net"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/harrybrwn/spiders/db"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

type Config struct {
	LogLevel string `yaml:"loglevel" config:"loglevel" default:"info"`
	LogFile  string `yaml:"log_file" config:"log_file"`
	// Limit is the maximum number of pages visited by a crawl. Zero or
	// less means no limit.
	Limit int `yaml:"limit" config:"limit"`
	// Host restricts a crawl to one hostname.
	Host        string        `yaml:"host" config:"host"`
	UserAgent   string        `yaml:"user_agent" config:"user_agent"`
	Timeout     time.Duration `yaml:"timeout" config:"timeout" default:"30s"`
	MaxBodySize int64         `yaml:"max_body_size" config:"max_body_size"`

	VisitedSet VisitedSetConfig `yaml:"visited_set" config:"visited_set"`
	DB         db.Config        `yaml:"db" config:"db"`
	Tracer     TracerConfig     `yaml:"tracer" config:"tracer"`
}

type VisitedSetConfig struct {
	// Type is one of memory, bloom, redis, badger, or postgres.
	Type string `yaml:"type" default:"memory"`

	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	// TTL is how long a url stays visited in redis. Zero is forever.
	TTL time.Duration `yaml:"ttl"`

	// Dir is the badger data directory. Empty means in-memory.
	Dir string `yaml:"dir"`

	// Size and FalsePositive tune the bloom filter.
	Size          uint    `yaml:"size" default:"100000"`
	FalsePositive float64 `yaml:"false_positive" default:"0.001"`
}

type TracerConfig struct {
	// Type is jaeger or zipkin. Tracing is off when empty.
	Type     string `yaml:"type"`
	Endpoint string `yaml:"endpoint"`
	// Service is reported as the service name. Defaults to the program
	// name.
	Service     string `yaml:"service"`
	Environment string `yaml:"environment"`
	// SampleRatio is the fraction of crawls that are traced. Zero or
	// less traces everything.
	SampleRatio float64 `yaml:"sample_ratio"`
}

func (c *Config) Bind(flag *flag.FlagSet) {
	flag.IntVarP(&c.Limit, "limit", "l", c.Limit, "maximum number of pages to visit (0 for no limit)")
	flag.StringVar(&c.Host, "host", c.Host, "only visit urls with this hostname")
	flag.StringVar(&c.UserAgent, "user-agent", c.UserAgent, "user agent sent with each request")
	flag.DurationVar(&c.Timeout, "timeout", c.Timeout, "timeout for each page request")
	flag.StringVar(&c.VisitedSet.Type, "visited", c.VisitedSet.Type, "visited set backend (memory, bloom, redis, badger, postgres)")
	flag.StringVar(&c.LogFile, "log-file", c.LogFile, "write json logs to a rotated file")
}

func (c *Config) RedisOpts() *redis.Options {
	return &redis.Options{
		Addr: net.JoinHostPort(
			c.VisitedSet.Host,
			strconv.FormatInt(int64(c.VisitedSet.Port), 10),
		),
		DB:       c.VisitedSet.DB,
		Password: c.VisitedSet.Password,
	}
}

// GetLevel parses the log level, falling back to info.
func (c *Config) GetLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
