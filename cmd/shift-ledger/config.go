package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"go.uber.org/zap"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRPC      = "rpc"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	SinkNone        = "none"
	SinkMQTT        = "mqtt"
	SinkKafka       = "kafka"
)

// Config is everything main needs to wire the service
type Config struct {
	Accounts              gin.Accounts
	LedgerBackend         string
	OEECalculator         string
	OEERPCURL             string
	OEERPCKey             string
	OEERPCFunction        string
	ProvisionalBackend    string
	ProvisionalSQLitePath string
	RedisURI              string
	RedisPassword         string
	ReconcileSchedule     string
	EventSink             string
	MQTTBrokerURL         string
	MQTTClientID          string
	MQTTUsername          string
	MQTTPassword          string
	KafkaBootstrapServers []string
	ServicePort           int
	RedisDB               int
	BackendReadRetries    int
	BackendTimeout        time.Duration
	ShiftListCacheTTL     time.Duration
	AtomicTransitions     bool
	EnforceSingleOpenStop bool
}

// LoadConfig reads the environment, after loading DOTENV_FILE if it exists
func LoadConfig() (Config, error) {
	dotenv, _ := env.GetAsString("DOTENV_FILE", false, ".env") //nolint:errcheck
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed loading env file %s: %w", dotenv, err)
	}

	var cfg Config
	var err error
	if cfg.ServicePort, err = env.GetAsInt("SERVICE_PORT", false, 80); err != nil {
		return cfg, err
	}
	if cfg.Accounts, err = loadAccounts(); err != nil {
		return cfg, err
	}

	if cfg.LedgerBackend, err = getChoice("LEDGER_BACKEND", BackendPostgres, BackendPostgres, BackendMemory); err != nil {
		return cfg, err
	}
	if cfg.OEECalculator, err = getChoice("OEE_CALCULATOR", BackendPostgres, BackendPostgres, BackendRPC); err != nil {
		return cfg, err
	}
	if cfg.LedgerBackend == BackendPostgres && cfg.OEECalculator == BackendRPC {
		if cfg.OEERPCURL, err = env.GetAsString("OEE_RPC_URL", true, ""); err != nil {
			return cfg, err
		}
		if cfg.OEERPCKey, err = env.GetAsString("OEE_RPC_KEY", false, ""); err != nil {
			return cfg, err
		}
		if cfg.OEERPCFunction, err = env.GetAsString("OEE_RPC_FUNCTION", false, "calculate_oee_snapshot"); err != nil {
			return cfg, err
		}
	}
	if cfg.AtomicTransitions, err = env.GetAsBool("ATOMIC_SHIFT_TRANSITIONS", false, false); err != nil {
		return cfg, err
	}
	if cfg.EnforceSingleOpenStop, err = env.GetAsBool("ENFORCE_SINGLE_OPEN_STOP", false, false); err != nil {
		return cfg, err
	}

	if cfg.ProvisionalBackend, err = getChoice("PROVISIONAL_BACKEND", BackendMemory, BackendMemory, BackendRedis, BackendSQLite); err != nil {
		return cfg, err
	}
	switch cfg.ProvisionalBackend {
	case BackendSQLite:
		if cfg.ProvisionalSQLitePath, err = env.GetAsString("PROVISIONAL_SQLITE_PATH", false, "/data/provisional.db"); err != nil {
			return cfg, err
		}
	case BackendRedis:
		if cfg.RedisURI, err = env.GetAsString("REDIS_URI", true, ""); err != nil {
			return cfg, err
		}
		if cfg.RedisPassword, err = env.GetAsString("REDIS_PASSWORD", false, ""); err != nil {
			return cfg, err
		}
		if cfg.RedisDB, err = env.GetAsInt("REDIS_DB", false, 0); err != nil {
			return cfg, err
		}
	}
	if cfg.ReconcileSchedule, err = env.GetAsString("RECONCILE_SCHEDULE", false, "@every 1m"); err != nil {
		return cfg, err
	}

	if cfg.EventSink, err = getChoice("EVENT_SINK", SinkNone, SinkNone, SinkMQTT, SinkKafka); err != nil {
		return cfg, err
	}
	switch cfg.EventSink {
	case SinkMQTT:
		if cfg.MQTTBrokerURL, err = env.GetAsString("MQTT_BROKER_URL", true, ""); err != nil {
			return cfg, err
		}
		if cfg.MQTTClientID, err = env.GetAsString("MQTT_CLIENT_ID", false, "shift-ledger"); err != nil {
			return cfg, err
		}
		if cfg.MQTTUsername, err = env.GetAsString("MQTT_USERNAME", false, ""); err != nil {
			return cfg, err
		}
		if cfg.MQTTPassword, err = env.GetAsString("MQTT_PASSWORD", false, ""); err != nil {
			return cfg, err
		}
	case SinkKafka:
		brokers, err := env.GetAsString("KAFKA_BOOTSTRAP_SERVER", true, "")
		if err != nil {
			return cfg, err
		}
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBootstrapServers = append(cfg.KafkaBootstrapServers, broker)
			}
		}
	}

	if cfg.BackendTimeout, err = getDuration("BACKEND_TIMEOUT", time.Minute); err != nil {
		return cfg, err
	}
	if cfg.BackendReadRetries, err = env.GetAsInt("BACKEND_READ_RETRIES", false, 2); err != nil {
		return cfg, err
	}
	if cfg.BackendReadRetries < 0 {
		return cfg, fmt.Errorf("BACKEND_READ_RETRIES must not be negative, got %d", cfg.BackendReadRetries)
	}
	if cfg.ShiftListCacheTTL, err = getDuration("SHIFT_LIST_CACHE_TTL", 5*time.Second); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadAccounts reads CUSTOMER_NAME/CUSTOMER_PASSWORD and the numbered CUSTOMER_NAME_n/CUSTOMER_PASSWORD_n pairs
func loadAccounts() (gin.Accounts, error) {
	accounts := gin.Accounts{}

	zap.S().Debugf("Loading accounts from environment..")
	user, _ := env.GetAsString("CUSTOMER_NAME", false, "")         //nolint:errcheck
	password, _ := env.GetAsString("CUSTOMER_PASSWORD", false, "") //nolint:errcheck
	if user != "" && password != "" {
		accounts[user] = password
	}
	for i := 1; i <= 100; i++ {
		tempUser := os.Getenv("CUSTOMER_NAME_" + strconv.Itoa(i))
		tempPassword := os.Getenv("CUSTOMER_PASSWORD_" + strconv.Itoa(i))
		if tempUser != "" && tempPassword != "" {
			zap.S().Infof("Added account for %s", tempUser)
			accounts[tempUser] = tempPassword
		}
	}
	if len(accounts) == 0 {
		return nil, errors.New("no API account configured, set CUSTOMER_NAME and CUSTOMER_PASSWORD")
	}
	return accounts, nil
}

func getChoice(key string, fallback string, allowed ...string) (string, error) {
	value, err := env.GetAsString(key, false, fallback)
	if err != nil {
		return "", err
	}
	value = strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if value == a {
			return value, nil
		}
	}
	return "", fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, err := env.GetAsString(key, false, "")
	if err != nil || value == "" {
		return fallback, err
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("%s is not a duration: %w", key, err)
	}
	return d, nil
}
