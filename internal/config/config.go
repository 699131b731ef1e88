package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// Config holds all configuration for the point-of-sale services
type Config struct {
	Database DatabaseConfig `envPrefix:"POS_DB_"`
	RabbitMQ RabbitMQConfig `envPrefix:"POS_RABBITMQ_"`
	POS      POSConfig      `envPrefix:"POS_"`
	HTTP     HTTPConfig     `envPrefix:"POS_HTTP_"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Database string `env:"NAME"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
}

// POSConfig holds outlet-wide pricing defaults. Rates are fractions, e.g. "0.18".
type POSConfig struct {
	TaxRate           string `env:"TAX_RATE"`
	ServiceChargeRate string `env:"SERVICE_CHARGE_RATE"`
	Currency          string `env:"CURRENCY"`
	Language          string `env:"LOCALE"`
}

// HTTPConfig holds the API listener configuration
type HTTPConfig struct {
	Port int `env:"PORT"`
}

// Default returns the configuration used when a key is absent everywhere.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "pos", Database: "pos"},
		RabbitMQ: RabbitMQConfig{Host: "localhost", Port: 5672, User: "guest", Password: "guest"},
		POS:      POSConfig{TaxRate: "0", ServiceChargeRate: "0", Currency: "USD", Language: "en"},
		HTTP:     HTTPConfig{Port: 3000},
	}
}

// Load reads configuration from a YAML file and then applies POS_* environment
// overrides. An empty filename skips the file.
func Load(filename string) (*Config, error) {
	config := Default()

	if filename != "" {
		if err := config.readFile(filename); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if _, _, err := config.POS.Rates(); err != nil {
		return nil, err
	}
	if _, _, err := config.POS.Locale(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) readFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)

	var currentSection string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasSuffix(line, ":") && !strings.Contains(line, " ") {
			currentSection = strings.TrimSuffix(line, ":")
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		if err := c.setValue(currentSection, key, value); err != nil {
			return fmt.Errorf("failed to set config value %s.%s: %w", currentSection, key, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// setValue sets a configuration value based on section and key
func (c *Config) setValue(section, key, value string) error {
	switch section {
	case "database":
		return c.setDatabaseValue(key, value)
	case "rabbitmq":
		return c.setRabbitMQValue(key, value)
	case "pos":
		return c.setPOSValue(key, value)
	case "http":
		return c.setHTTPValue(key, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func (c *Config) setDatabaseValue(key, value string) error {
	switch key {
	case "host":
		c.Database.Host = value
	case "port":
		port, err := parsePort(value)
		if err != nil {
			return err
		}
		c.Database.Port = port
	case "user":
		c.Database.User = value
	case "password":
		c.Database.Password = value
	case "database":
		c.Database.Database = value
	default:
		return fmt.Errorf("unknown database key: %s", key)
	}
	return nil
}

func (c *Config) setRabbitMQValue(key, value string) error {
	switch key {
	case "host":
		c.RabbitMQ.Host = value
	case "port":
		port, err := parsePort(value)
		if err != nil {
			return err
		}
		c.RabbitMQ.Port = port
	case "user":
		c.RabbitMQ.User = value
	case "password":
		c.RabbitMQ.Password = value
	default:
		return fmt.Errorf("unknown rabbitmq key: %s", key)
	}
	return nil
}

func (c *Config) setPOSValue(key, value string) error {
	switch key {
	case "tax_rate":
		c.POS.TaxRate = value
	case "service_charge_rate":
		c.POS.ServiceChargeRate = value
	case "currency":
		c.POS.Currency = value
	case "locale":
		c.POS.Language = value
	default:
		return fmt.Errorf("unknown pos key: %s", key)
	}
	return nil
}

func (c *Config) setHTTPValue(key, value string) error {
	switch key {
	case "port":
		port, err := parsePort(value)
		if err != nil {
			return err
		}
		c.HTTP.Port = port
	default:
		return fmt.Errorf("unknown http key: %s", key)
	}
	return nil
}

func parsePort(value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid port value: %w", err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

// Rates parses the tax and service charge rates; both must lie in [0, 1].
func (p POSConfig) Rates() (tax, serviceCharge decimal.Decimal, err error) {
	tax, err = parseRate("pos.tax_rate", p.TaxRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	serviceCharge, err = parseRate("pos.service_charge_rate", p.ServiceChargeRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return tax, serviceCharge, nil
}

// Locale parses the receipt language and currency.
func (p POSConfig) Locale() (language.Tag, currency.Unit, error) {
	tag, err := language.Parse(p.Language)
	if err != nil {
		return language.Und, currency.Unit{}, fmt.Errorf("invalid pos.locale %q: %w", p.Language, err)
	}
	unit, err := currency.ParseISO(p.Currency)
	if err != nil {
		return language.Und, currency.Unit{}, fmt.Errorf("invalid pos.currency %q: %w", p.Currency, err)
	}
	return tag, unit, nil
}

func parseRate(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s %s must be between 0 and 1", name, value)
	}
	return rate, nil
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

// HTTPAddr returns the listen address for the API server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}
