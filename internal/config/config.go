package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Database struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl-mode"`
}

type Stripe struct {
	APIKey        string `mapstructure:"api-key"`
	WebhookSecret string `mapstructure:"webhook-secret"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	DonationSettled string `mapstructure:"donation-settled"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
}

type OutboxRelay struct {
	PollingIntervalMs   int `mapstructure:"polling-interval-ms"`
	FetchSize           int `mapstructure:"fetch-size"`
	RetryPublishDelayMs int `mapstructure:"retry-publish-delay-ms"`
	MaxPublishAttempts  int `mapstructure:"max-publish-attempts"`
}

type Checkout struct {
	SuccessURL string `mapstructure:"success-url"`
	CancelURL  string `mapstructure:"cancel-url"`
}

type Category struct {
	RemoteURL string `mapstructure:"remote-url"`
	TimeoutMs int    `mapstructure:"timeout-ms"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Database Database    `mapstructure:"database"`
	Stripe   Stripe      `mapstructure:"stripe"`
	Kafka    Kafka       `mapstructure:"kafka"`
	Outbox   OutboxRelay `mapstructure:"outbox"`
	Checkout Checkout    `mapstructure:"checkout"`
	Category Category    `mapstructure:"category"`
	Server   Server      `mapstructure:"server"`
	Metrics  Metrics     `mapstructure:"metrics"`
	Logs     Logs        `mapstructure:"logs"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// secrets (stripe keys, db password) come from the environment
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}
