package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port    int    `yaml:"port" json:"port" env:"TECKY_PORT"`
		DataDir string `yaml:"data_dir" json:"data_dir" env:"TECKY_DATA_DIR"`
	} `yaml:"app" json:"app"`

	Log struct {
		Env   string `yaml:"env" json:"env" env:"TECKY_LOG_ENV"`
		Level string `yaml:"level" json:"level" env:"TECKY_LOG_LEVEL"`
	} `yaml:"log" json:"log"`

	Server struct {
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins" json:"cors_allowed_origins" env:"TECKY_CORS_ORIGINS" envSeparator:","`
		// public contact form submissions allowed per minute per client
		ContactRatePerMin int `yaml:"contact_rate_per_min" json:"contact_rate_per_min" env:"TECKY_CONTACT_RATE"`
	} `yaml:"server" json:"server"`

	Dashboard struct {
		APIURL           string  `yaml:"api_url" json:"api_url" env:"TECKY_API_URL"`
		PushURL          string  `yaml:"push_url" json:"push_url" env:"TECKY_PUSH_URL"`
		RequestRate      float64 `yaml:"request_rate" json:"request_rate"`
		ReconnectSeconds int     `yaml:"reconnect_seconds" json:"reconnect_seconds"`
	} `yaml:"dashboard" json:"dashboard"`

	Mail struct {
		Enabled       bool   `yaml:"enabled" json:"enabled" env:"TECKY_MAIL_ENABLED"`
		IMAPHost      string `yaml:"imap_host" json:"imap_host"`
		IMAPPort      int    `yaml:"imap_port" json:"imap_port"`
		Username      string `yaml:"username" json:"username" env:"TECKY_MAIL_USERNAME"`
		Mailbox       string `yaml:"mailbox" json:"mailbox"`
		PollSeconds   int    `yaml:"poll_seconds" json:"poll_seconds"`
		SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`
		MaxPerPoll    int    `yaml:"max_per_poll" json:"max_per_poll"`
	} `yaml:"mail" json:"mail"`

	Retention struct {
		// contacts older than this are purged; 0 keeps everything
		ContactsDays int `yaml:"contacts_days" json:"contacts_days"`
	} `yaml:"retention" json:"retention"`
}

// Default is the configuration written on first run.
func Default() Config {
	var c Config
	c.App.Port = 38471
	c.App.DataDir = "."
	c.Log.Env = "dev"
	c.Log.Level = "info"
	c.Server.ContactRatePerMin = 5
	c.Dashboard.APIURL = "http://127.0.0.1:38471/api"
	c.Dashboard.PushURL = "ws://127.0.0.1:38471/ws"
	c.Dashboard.RequestRate = 10
	c.Dashboard.ReconnectSeconds = 3
	c.Mail.IMAPPort = 993
	c.Mail.Mailbox = "INBOX"
	c.Mail.PollSeconds = 120
	c.Mail.SubjectPrefix = "[Contact]"
	c.Mail.MaxPerPoll = 50
	c.Retention.ContactsDays = 180
	return c
}

func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
