package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

type Config struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Name     string `yaml:"name" env:"POSTGRES_DB"`
	SSL      string `yaml:"ssl" default:"disable"`
}

// New opens a postgres connection and checks that it is alive.
func New(ctx context.Context, cfg *Config) (*sql.DB, error) {
	os.Unsetenv("PGSERVICEFILE") // lib/pq panics when this is set
	os.Unsetenv("PGSERVICE")

	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, errors.Wrap(err, "could not open postgres db")
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not ping postgres")
	}
	return db, nil
}

func (c *Config) dsn() string {
	ssl := c.SSL
	if ssl == "" {
		ssl = "disable"
	}
	parts := []string{
		fmt.Sprintf("host=%s", c.Host),
		fmt.Sprintf("port=%d", c.Port),
	}
	for _, kv := range [][2]string{
		{"user", c.User},
		{"password", c.Password},
		{"dbname", c.Name},
	} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+quote(kv[1]))
		}
	}
	parts = append(parts, "sslmode="+ssl)
	return strings.Join(parts, " ")
}

// quote escapes a dsn value when it has spaces or quotes in it.
func quote(s string) string {
	if !strings.ContainsAny(s, ` '\`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
