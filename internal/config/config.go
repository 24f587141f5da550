package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Checkout CheckoutConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret string
}

type CheckoutConfig struct {
	// PaymentDeadline is how long before an unpaid transaction expires.
	PaymentDeadline time.Duration
	// SweepInterval is how often the sweeper wakes up.
	SweepInterval time.Duration
	// ProofBaseURL is the required prefix of payment proof URLs.
	ProofBaseURL string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080"
	}

	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid SERVER_PORT: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPortStr := os.Getenv("POSTGRES_PORT")
	if postgresPortStr == "" {
		postgresPortStr = "5432"
	}

	postgresPort, err := strconv.Atoi(postgresPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid POSTGRES_PORT: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}

	authCfg := AuthConfig{
		JWTSecret: jwtSecret,
	}

	paymentDeadline := 2 * time.Hour
	if s := os.Getenv("PAYMENT_DEADLINE"); s != "" {
		paymentDeadline, err = time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid PAYMENT_DEADLINE: %w", op, err)
		}
	}

	sweepInterval := time.Minute
	if s := os.Getenv("SWEEP_INTERVAL"); s != "" {
		sweepInterval, err = time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid SWEEP_INTERVAL: %w", op, err)
		}
	}

	checkoutCfg := CheckoutConfig{
		PaymentDeadline: paymentDeadline,
		SweepInterval:   sweepInterval,
		ProofBaseURL:    os.Getenv("PROOF_BASE_URL"),
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Auth:     authCfg,
		Checkout: checkoutCfg,
	}, nil
}
