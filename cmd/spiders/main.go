package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/harrybrwn/config"
	"github.com/harrybrwn/spiders/cmd"
	"github.com/harrybrwn/spiders/crawler"
	"github.com/harrybrwn/spiders/db"
	"github.com/harrybrwn/spiders/internal/logging"
	"github.com/harrybrwn/spiders/internal/tracing"
	"github.com/harrybrwn/spiders/storage"
	"github.com/harrybrwn/spiders/web"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = logrus.New()

func main() {
	var (
		err error
		cmd = NewCLIRoot()
	)
	godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err = cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewCLIRoot() *cobra.Command {
	var (
		configfile string
		noColor    bool
		conf       = cmd.Config{Limit: crawler.DefaultLimit, Timeout: web.DefaultTimeout}
		tp         *tracesdk.TracerProvider
	)
	c := &cobra.Command{
		Use:           "spiders",
		Short:         "Crawl websites one page at a time.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, limit := conf.LogLevel, conf.Limit
			if err := prerun(configfile, &conf); err != nil {
				return err
			}
			// flags beat the config file and its defaults
			flags := cmd.Flags()
			if flags.Changed("loglevel") {
				conf.LogLevel = level
			}
			if flags.Changed("limit") {
				conf.Limit = limit
			}
			initLogger(noColor, &conf)
			if conf.Tracer.Type == "" {
				return nil
			}
			var err error
			tp, err = tracing.Provider(&conf.Tracer, "spiders")
			if err != nil {
				return errors.Wrap(err, "could not start tracing")
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if tp == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tp.Shutdown(ctx)
		},
	}
	flags := c.PersistentFlags()
	flags.StringVar(&conf.LogLevel, "loglevel", conf.LogLevel, "set log level")
	flags.StringVarP(&configfile, "config", "c", configfile, "use a different config file")
	flags.BoolVar(&noColor, "no-color", noColor, "disable output colors")

	confcmd := config.NewConfigCommand()
	config.SetDefaultCommandFlags(confcmd)
	c.AddCommand(
		newCrawlCmd(&conf),
		newFetchCmd(&conf),
		newSaveCmd(&conf),
		newListCmd(&conf),
		cmd.NewVersionCmd(),
		confcmd,
	)
	c.SetOut(os.Stdout)
	c.SetErr(os.Stderr)
	c.SetUsageTemplate(config.IndentedCobraHelpTemplate)
	conf.Bind(c.PersistentFlags())
	return c
}

func prerun(configfile string, conf *cmd.Config) error {
	if configfile != "" {
		dir, file := filepath.Split(configfile)
		if dir == "" {
			dir = "."
		}
		if file == "" {
			return errors.New("no config file given")
		}
		config.AddPath(dir)
		config.AddFile(file)
	}
	config.AddUserConfigDir("spiders")
	config.AddFile("spiders.yml")
	config.AddFile("config.yml")
	config.AddPath(".")
	config.SetType("yaml")
	config.SetConfig(conf)
	err := config.InitDefaults()
	if err != nil {
		return errors.Wrap(err, "could not set config defaults")
	}

	err = config.ReadConfig()
	switch err {
	case nil:
		break
	case config.ErrNoConfigFile:
		log.WithFields(logrus.Fields{"error": err}).Debug("could not read config file")
	default:
		return errors.Wrap(err, "could not read config")
	}
	return nil
}

func initLogger(nocolor bool, conf *cmd.Config) {
	out := os.Stderr
	maxlen := 64
	if !logging.IsTerm(out) {
		nocolor = true
		maxlen = 1
	}
	lvl := conf.GetLevel()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.TraceLevel)
	log.SetFormatter(&logging.PrefixedFormatter{
		TimeFormat:       time.Stamp,
		MaxMessageLength: maxlen,
		NoColor:          nocolor,
	})
	if conf.LogFile != "" {
		log.AddHook(logging.NewLogFileHook(&lumberjack.Logger{
			Filename:   conf.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		}, &logrus.JSONFormatter{}))
	}
	log.AddHook(&logging.Hook{
		Writer:    out,
		LogLevels: logrus.AllLevels[:lvl+1],
	})
	web.SetLogger(log)
}

func newHTTPClient(conf *cmd.Config) *http.Client {
	return &http.Client{
		Timeout: conf.Timeout,
		Transport: otelhttp.NewTransport(&logging.Transport{
			Base:   http.DefaultTransport,
			Logger: log,
		}),
	}
}

func newVisitor(conf *cmd.Config, set storage.VisitedSet) *web.Visitor {
	opts := []web.VisitorOption{
		web.WithClient(newHTTPClient(conf)),
		web.WithVisitedSet(set),
		web.WithLogger(log),
	}
	if conf.UserAgent != "" {
		opts = append(opts, web.WithUserAgent(conf.UserAgent))
	}
	if conf.MaxBodySize > 0 {
		opts = append(opts, web.WithMaxBodySize(conf.MaxBodySize))
	}
	return web.NewVisitor(opts...)
}

func nop() error { return nil }

// openVisitedSet creates the visited set named in the config. The returned
// function releases whatever the set holds open.
func openVisitedSet(ctx context.Context, conf *cmd.Config) (storage.VisitedSet, func() error, error) {
	vs := &conf.VisitedSet
	switch vs.Type {
	case "", "memory":
		return storage.NewInMemoryVisitedSet(), nop, nil
	case "bloom":
		size, fp := vs.Size, vs.FalsePositive
		if size == 0 {
			size = 100_000
		}
		if fp <= 0 || fp >= 1 {
			fp = 0.001
		}
		return storage.NewBloomVisitedSet(size, fp), nop, nil
	case "redis":
		client := redis.NewClient(conf.RedisOpts())
		client.AddHook(redisotel.NewTracingHook())
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, errors.Wrap(err, "could not connect to redis")
		}
		return storage.NewRedisVisitedSet(client, vs.TTL), client.Close, nil
	case "badger":
		bdb, err := storage.OpenBadger(vs.Dir)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewBadgerVisitedSet(bdb), bdb.Close, nil
	case "postgres":
		pg, err := db.New(ctx, &conf.DB)
		if err != nil {
			return nil, nil, err
		}
		set := storage.NewPostgresVisitedSet(pg)
		if err = set.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return set, pg.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown visited set type %q", vs.Type)
	}
}
