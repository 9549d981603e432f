package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type HttpConfig struct {
	Port int `envconfig:"HTTP_PORT" default:"8080"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

type BankConfig struct {
	BaseURL         string `envconfig:"BANK_BASE_URL" default:"http://localhost:8080/bank"`
	StartingBalance string `envconfig:"BANK_STARTING_BALANCE" default:"1000"`
}

type ExchangeConfig struct {
	BaseURL   string `envconfig:"EXCHANGE_BASE_URL" default:"http://localhost:8080"`
	ServerTLS bool   `envconfig:"EXCHANGE_SERVER_TLS" default:"false"`
	Token     string `envconfig:"EXCHANGE_TOKEN" json:"-"`
}

type StreamConfig struct {
	// Transport is one of "sse", "centrifugo" or "redis".
	Transport       string        `envconfig:"STREAM_TRANSPORT" default:"sse"`
	ReconnectDelay  time.Duration `envconfig:"STREAM_RECONNECT_DELAY" default:"2s"`
	PriceTarget     string        `envconfig:"STREAM_PRICE_TARGET" default:"http://localhost:8080/bitcoin/price/watch"`
	NewsTarget      string        `envconfig:"STREAM_NEWS_TARGET" default:"http://localhost:8080/bitcoin/news"`
	BroadcastTarget string        `envconfig:"STREAM_BROADCAST_TARGET" default:"http://localhost:8080/broadcast"`
}

type CentrifugeConfig struct {
	Enabled      bool   `envconfig:"CENTRIFUGE_ENABLED" default:"false"`
	Host         string `envconfig:"CENTRIFUGE_HOST" default:"localhost:8000"`
	Token        string `envconfig:"CENTRIFUGE_TOKEN" json:"-"`
	SignTokenKey string `envconfig:"CENTRIFUGE_SIGN_TOKEN_KEY" json:"-"`
	Debug        bool   `envconfig:"CENTRIFUGE_DEBUG" default:"false"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" json:"-"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`

	// Publish relays registry events to redis channels named Prefix+key,
	// global events to Prefix+event name.
	Publish bool   `envconfig:"REDIS_PUBLISH" default:"false"`
	Prefix  string `envconfig:"REDIS_PREFIX" default:"cryptotrader:"`
}

type ScheduleConfig struct {
	PriceTick         time.Duration `envconfig:"SCHEDULE_PRICE_TICK" default:"1s"`
	AggregateDelay    time.Duration `envconfig:"SCHEDULE_AGGREGATE_DELAY" default:"4s"`
	AggregatePeriod   time.Duration `envconfig:"SCHEDULE_AGGREGATE_PERIOD" default:"2s"`
	LeaderboardPeriod time.Duration `envconfig:"SCHEDULE_LEADERBOARD_PERIOD" default:"1s"`
	LeaderboardSize   int           `envconfig:"SCHEDULE_LEADERBOARD_SIZE" default:"5"`
}

type Config struct {
	HttpConfig       HttpConfig
	LogConfig        LogConfig
	BankConfig       BankConfig
	ExchangeConfig   ExchangeConfig
	StreamConfig     StreamConfig
	CentrifugeConfig CentrifugeConfig
	RedisConfig      RedisConfig
	ScheduleConfig   ScheduleConfig
}

// SetConfig loads configPath into the environment when it exists and then
// processes the environment into Config. It panics on invalid values.
func SetConfig(configPath string) Config {
	if _, err := os.Stat(configPath); err == nil {
		if err := godotenv.Load(configPath); err != nil {
			panic(err)
		}
	}

	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Println("msg", "failed to load configuration", "err", err)
		panic(err)
	}
	bs, _ := json.Marshal(cfg)
	fmt.Println("CONFIG:", string(bs))

	return cfg
}

func GetContext() context.Context {
	return context.Background()
}
