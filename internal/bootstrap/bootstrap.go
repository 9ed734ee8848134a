// Package bootstrap builds the shared dependencies of the binaries from the loaded config.
package bootstrap

import (
	"os"
	"strings"
	"time"

	"github.com/nimasrn/matatu-pay/internal/config"
	gateway "github.com/nimasrn/matatu-pay/internal/gateways"
	"github.com/nimasrn/matatu-pay/internal/queue"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/pg"
	"github.com/nimasrn/matatu-pay/pkg/redis"
	"github.com/pkg/errors"
)

// ArgValue returns the value of a --name=value argument, or "" when absent.
func ArgValue(args []string, name string) string {
	prefix := "--" + name + "="
	for _, v := range args {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return ""
}

// EnvPath returns the --env file passed on the command line if it can be opened.
func EnvPath(args []string) string {
	p := ArgValue(args, "env")
	if p == "" {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		logger.Error("failed to open the passed env file", "path", p, "error", err)
		return ""
	}
	return p
}

func ReadConfig(c *config.Config) pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
		SSLMode:  c.PostgresSSLMode,

		MaxOpenConns:    c.PostgresMaxOpenConns,
		MaxIdleConns:    c.PostgresMaxIdleConns,
		ConnMaxLifetime: c.PostgresConnMaxLifetime,
	}
}

func WriteConfig(c *config.Config) pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
		SSLMode:  c.PostgresSSLMode,

		MaxOpenConns:    c.PostgresMaxOpenConns,
		MaxIdleConns:    c.PostgresMaxIdleConns,
		ConnMaxLifetime: c.PostgresConnMaxLifetime,
	}
}

func Postgres(c *config.Config) (*pg.DB, error) {
	db, err := pg.CreateReadWrite(ReadConfig(c), WriteConfig(c), c.AppEnv == "dev")
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	return db, nil
}

func Redis(c *config.Config) (redis.RedisAdapter, error) {
	adapter, err := redis.NewRedisAdapter("default", c.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: c.AppName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect redis")
	}
	return adapter, nil
}

func GatewayConfig(c *config.Config) *gateway.Config {
	return &gateway.Config{
		BaseURL:                 c.MpesaBaseURL,
		ConsumerKey:             c.MpesaConsumerKey,
		ConsumerSecret:          c.MpesaConsumerSecret,
		ShortCode:               c.MpesaShortCode,
		PassKey:                 c.MpesaPassKey,
		CallbackURL:             c.MpesaCallbackURL,
		TransactionType:         c.MpesaTransactionType,
		Timeout:                 c.MpesaTimeout,
		TokenMargin:             c.MpesaTokenMargin,
		MaxRetries:              c.MpesaQueryRetries,
		RetryDelay:              200 * time.Millisecond,
		MaxConns:                256,
		ReadBufferSize:          1024 * 4,
		WriteBufferSize:         1024 * 4,
		CircuitBreakerThreshold: c.MpesaCircuitBreakerThreshold,
		CircuitBreakerTimeout:   c.MpesaCircuitBreakerTimeout,
	}
}

func Gateway(c *config.Config) (*gateway.Client, error) {
	return gateway.NewClient(GatewayConfig(c))
}

// SettledQueue is the stream settlement events are published to and consumed from.
func SettledQueue(adapter redis.RedisAdapter, c *config.Config) (*queue.Queue, error) {
	return queue.NewQueue(adapter, queue.QueueConfig{
		Name:              c.SettledStreamName,
		ConsumerGroup:     c.QueueConsumerGroup,
		ConsumerName:      c.QueueConsumerName,
		MaxRetries:        c.QueueMaxRetries,
		VisibilityTimeout: c.QueueVisibilityTimeout,
		PollInterval:      c.QueuePollInterval,
		BatchSize:         c.QueueBatchSize,
		MaxLen:            c.QueueMaxLen,
		EnableDLQ:         c.QueueEnableDLQ,
	})
}
