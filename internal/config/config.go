package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/pkg/errors"
)

var config *Config

// Configuration This struct holds config envs and values
// which are used by the binaries. Only this struct must be used
// to hold any configuration values, no direct access to
// env, ini or any other config source should be made
type Config struct {
	AppEnv  string `env:"APP_ENV,default=dev" validate:"oneof=dev test staging production prod"`
	AppName string `env:"APP_NAME,default=matatu_pay"`

	HttpListenAddr            string `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpServerReadTimeout     int    `env:"HTTP_SERVER_READ_TIMEOUT"`
	HttpServerWriteTimeout    int    `env:"HTTP_SERVER_WRITE_TIMEOUT"`
	HttpServerReadBufferSize  int    `env:"HTTP_SERVER_READ_BUFFER_SIZE"`
	HttpServerWriteBufferSize int    `env:"HTTP_SERVER_WRITE_BUFFER_SIZE"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	PostgresSSLMode         string        `env:"POSTGRES_SSLMODE,default=disable"`
	PostgresMaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS,default=20" validate:"gte=0"`
	PostgresMaxIdleConns    int           `env:"POSTGRES_MAX_IDLE_CONNS,default=5" validate:"gte=0"`
	PostgresConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME,default=30m"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace  string `env:"PROM_NAMESPACE"`
	PromListenAddr string `env:"PROM_LISTEN_ADDR,default=:9100"`

	ProcessorPromListenAddr string `env:"PROCESSOR_PROM_LISTEN_ADDR,default=:9101"`

	LogLevel string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error dpanic panic fatal"`

	SettledStreamName      string        `env:"SETTLED_STREAM_NAME,default=payments:settled"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=stats"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME,default=stats"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS,default=2" validate:"gte=1"`
	QueueWorkers           int           `env:"QUEUE_WORKERS,default=8" validate:"gte=1"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=5"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=500ms"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=50"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=100000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`
	StatsRetention         time.Duration `env:"STATS_RETENTION,default=2160h"`

	MpesaBaseURL                 string        `env:"MPESA_BASE_URL,default=https://sandbox.safaricom.co.ke" validate:"url"`
	MpesaConsumerKey             string        `env:"MPESA_CONSUMER_KEY"`
	MpesaConsumerSecret          string        `env:"MPESA_CONSUMER_SECRET"`
	MpesaShortCode               string        `env:"MPESA_SHORTCODE"`
	MpesaPassKey                 string        `env:"MPESA_PASSKEY"`
	MpesaCallbackURL             string        `env:"MPESA_CALLBACK_URL" validate:"omitempty,url"`
	MpesaTransactionType         string        `env:"MPESA_TRANSACTION_TYPE,default=CustomerPayBillOnline"`
	MpesaTimeout                 time.Duration `env:"MPESA_TIMEOUT,default=30s"`
	MpesaTokenMargin             time.Duration `env:"MPESA_TOKEN_MARGIN,default=60s"`
	MpesaQueryRetries            int           `env:"MPESA_QUERY_RETRIES,default=1" validate:"gte=0"`
	MpesaCircuitBreakerThreshold int           `env:"MPESA_CIRCUIT_BREAKER_THRESHOLD,default=5"`
	MpesaCircuitBreakerTimeout   time.Duration `env:"MPESA_CIRCUIT_BREAKER_TIMEOUT,default=30s"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	if err = validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the loaded configuration; binaries and tests that build it by hand use it.
func Set(c *Config) {
	config = c
}
