package cloudvm_config

import (
	"net/url"
	"os"
	"strconv"
)

// DatabaseConfiguration locates the Postgres database. Url wins over the individual parts;
// when neither is set the service runs on its in-memory store.
type DatabaseConfiguration struct {
	Url      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int32  `yaml:"max_conns"`
}

func DatabaseFromEnvironmentWithFallback(host string, port int, username string, password string, database string) DatabaseConfiguration {
	cfg := DatabaseConfiguration{
		Host:     os.Getenv("DATABASE_HOST"),
		Port:     os.Getenv("DATABASE_PORT"),
		Username: os.Getenv("DATABASE_USERNAME"),
		Password: os.Getenv("DATABASE_PASSWORD"),
		Database: os.Getenv("DATABASE_DATABASE"),
		MaxConns: 10,
	}
	if cfg.Host == "" {
		cfg.Host = host
	}
	if cfg.Port == "" {
		cfg.Port = strconv.Itoa(port)
	}
	if cfg.Username == "" {
		cfg.Username = username
	}
	if cfg.Password == "" {
		cfg.Password = password
	}
	if cfg.Database == "" {
		cfg.Database = database
	}
	return cfg
}

func (self *DatabaseConfiguration) Configured() bool {
	return self.Url != "" || self.Host != ""
}

// GetConnectionString returns Url when set, otherwise a postgres:// URL built from the parts
// with the credentials escaped.
func (self *DatabaseConfiguration) GetConnectionString() string {
	if self.Url != "" {
		return self.Url
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   self.Host + ":" + self.Port,
		Path:   "/" + self.Database,
	}
	if self.Password != "" {
		u.User = url.UserPassword(self.Username, self.Password)
	} else if self.Username != "" {
		u.User = url.User(self.Username)
	}
	return u.String()
}
