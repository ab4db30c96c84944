package config

import (
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	AppURL      string `env:"APP_URL" envDefault:"http://localhost:3000"`

	Database   Database   `envPrefix:"DATABASE_"`
	Auth       Auth       `envPrefix:"AUTH_"`
	Paystack   Paystack   `envPrefix:"PAYSTACK_"`
	Email      Email      `envPrefix:"EMAIL_"`
	Storage    Storage    `envPrefix:"STORAGE_"`
	Commission Commission `envPrefix:"COMMISSION_"`
	Download   Download   `envPrefix:"DOWNLOAD_"`
	Kafka      Kafka      `envPrefix:"KAFKA_"`
}

type Database struct {
	Driver string `env:"DRIVER" envDefault:"mysql"` // mysql, postgres, sqlite
	URL    string `env:"URL"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET,required"`
}

type Paystack struct {
	BaseApiURL  string        `env:"BASE_API_URL" envDefault:"https://api.paystack.co"`
	SecretKey   string        `env:"SECRET_KEY"`
	Currency    string        `env:"CURRENCY" envDefault:"NGN"`
	CallbackURL string        `env:"CALLBACK_URL"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type Email struct {
	BaseApiURL string        `env:"BASE_API_URL" envDefault:"https://api.resend.com"`
	APIKey     string        `env:"API_KEY"`
	From       string        `env:"FROM" envDefault:"Marketplace <orders@example.com>"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

type Storage struct {
	BaseURL string        `env:"BASE_URL"`
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// Commission has no default rate on purpose: the operator has to choose it.
type Commission struct {
	Rate       decimal.Decimal `env:"RATE,required"`
	MinorUnits int32           `env:"MINOR_UNITS" envDefault:"2"`
}

type Download struct {
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
	GuestTokenTTL time.Duration `env:"GUEST_TOKEN_TTL" envDefault:"72h"`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"marketplace.notifications"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

// CallbackURL is where the gateway sends the buyer after checkout.
func (c *Config) CallbackURL() string {
	if c.Paystack.CallbackURL != "" {
		return c.Paystack.CallbackURL
	}
	return c.AppURL + "/payment/callback"
}
