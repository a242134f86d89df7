package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/internal/models"
)

type Config struct {
	HTTP_ADDR    string
	APP_BASE_URL string
	LOG_LEVEL    string

	DB_HOST     string
	DB_PORT     string
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string

	ES_URL      string
	ES_USER     string
	ES_PASSWORD string

	KAFKA_ADDRESS string

	NEWSLETTER_SECRET string

	SMTP_ADDR     string
	SMTP_HOST     string
	SMTP_FROM     string
	SMTP_USER     string
	SMTP_PASSWORD string

	CONTACT_RECIPIENT string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		HTTP_ADDR:         getenv("HTTP_ADDR", ":8080"),
		APP_BASE_URL:      getenv("APP_BASE_URL", "http://localhost:8080"),
		LOG_LEVEL:         getenv("LOG_LEVEL", "info"),
		DB_HOST:           os.Getenv("DB_HOST"),
		DB_PORT:           os.Getenv("DB_PORT"),
		DB_USER:           os.Getenv("DB_USER"),
		DB_PASSWORD:       os.Getenv("DB_PASSWORD"),
		DB_NAME:           os.Getenv("DB_NAME"),
		ES_URL:            os.Getenv("ES_URL"),
		ES_USER:           os.Getenv("ES_USER"),
		ES_PASSWORD:       os.Getenv("ES_PASSWORD"),
		KAFKA_ADDRESS:     os.Getenv("KAFKA_ADDRESS"),
		NEWSLETTER_SECRET: os.Getenv("NEWSLETTER_SECRET"),
		SMTP_ADDR:         os.Getenv("SMTP_ADDR"),
		SMTP_HOST:         os.Getenv("SMTP_HOST"),
		SMTP_FROM:         os.Getenv("SMTP_FROM"),
		SMTP_USER:         os.Getenv("SMTP_USER"),
		SMTP_PASSWORD:     os.Getenv("SMTP_PASSWORD"),
		CONTACT_RECIPIENT: os.Getenv("CONTACT_RECIPIENT"),
	}

	if config.NEWSLETTER_SECRET == "" {
		return nil, fmt.Errorf("NEWSLETTER_SECRET is required")
	}

	return config, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// InitDB opens the database named by the config and migrates the schema. The
// handle is constructed once here and injected everywhere else.
func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DB_USER, cfg.DB_PASSWORD, cfg.DB_HOST, cfg.DB_PORT, cfg.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("could not migrate schema: %w", err)
	}
	return db, nil
}

// Migrate applies the schema. Shared with the test database setup.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.VerificationToken{},
		&models.Post{},
		&models.ContactMessage{},
		&models.NewsletterSubscriber{},
	)
}
