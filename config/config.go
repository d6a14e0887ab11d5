package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL      string
	REDIS_PASSWORD string
	REDIS_DB       string
	// Document store mirror
	MONGO_URI      string
	MONGO_DATABASE string
	// Search
	ELASTICSEARCH_URL      string
	ELASTICSEARCH_USERNAME string
	ELASTICSEARCH_PASSWORD string
	// Object storage (any S3 compatible endpoint)
	S3_BUCKET          string
	S3_REGION          string
	S3_ENDPOINT        string
	S3_ACCESS_KEY      string
	S3_SECRET_KEY      string
	S3_PUBLIC_BASE_URL string
	// Credential registry contract
	CHAIN_RPC_URL          string
	CHAIN_ID               int64
	CHAIN_CONTRACT_ADDRESS string
	CHAIN_ISSUER_KEY       string
	CHAIN_ISSUER_ADDRESS   string
	// Email
	SMTP_HOST     string
	SMTP_PORT     string
	SMTP_USERNAME string
	SMTP_PASSWORD string
	SMTP_FROM     string
	// HTTP
	ALLOWED_ORIGINS string
	FRONTEND_URL    string
	CRON_ENABLED    bool
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	dbSSLMode := os.Getenv("DB_SSL_MODE")
	if dbSSLMode == "" {
		dbSSLMode = "disable"
	}

	chainID, err := strconv.ParseInt(os.Getenv("CHAIN_ID"), 10, 64)
	if err != nil {
		chainID = 0
	}

	mongoDatabase := os.Getenv("MONGO_DATABASE")
	if mongoDatabase == "" {
		mongoDatabase = "unilink"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "unilink-api"
	}

	smtpPort := os.Getenv("SMTP_PORT")
	if smtpPort == "" {
		smtpPort = "587"
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  dbSSLMode,
		PORT:         port,
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: jwtIssuer,
		// Redis
		REDIS_URL:      os.Getenv("REDIS_URL"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),
		REDIS_DB:       os.Getenv("REDIS_DB"),
		// Mongo
		MONGO_URI:      os.Getenv("MONGO_URI"),
		MONGO_DATABASE: mongoDatabase,
		// Elasticsearch
		ELASTICSEARCH_URL:      os.Getenv("ELASTICSEARCH_URL"),
		ELASTICSEARCH_USERNAME: os.Getenv("ELASTICSEARCH_USERNAME"),
		ELASTICSEARCH_PASSWORD: os.Getenv("ELASTICSEARCH_PASSWORD"),
		// S3
		S3_BUCKET:          os.Getenv("S3_BUCKET"),
		S3_REGION:          os.Getenv("S3_REGION"),
		S3_ENDPOINT:        os.Getenv("S3_ENDPOINT"),
		S3_ACCESS_KEY:      os.Getenv("S3_ACCESS_KEY"),
		S3_SECRET_KEY:      os.Getenv("S3_SECRET_KEY"),
		S3_PUBLIC_BASE_URL: os.Getenv("S3_PUBLIC_BASE_URL"),
		// Chain
		CHAIN_RPC_URL:          os.Getenv("CHAIN_RPC_URL"),
		CHAIN_ID:               chainID,
		CHAIN_CONTRACT_ADDRESS: os.Getenv("CHAIN_CONTRACT_ADDRESS"),
		CHAIN_ISSUER_KEY:       os.Getenv("CHAIN_ISSUER_KEY"),
		CHAIN_ISSUER_ADDRESS:   os.Getenv("CHAIN_ISSUER_ADDRESS"),
		// SMTP
		SMTP_HOST:     os.Getenv("SMTP_HOST"),
		SMTP_PORT:     smtpPort,
		SMTP_USERNAME: os.Getenv("SMTP_USERNAME"),
		SMTP_PASSWORD: os.Getenv("SMTP_PASSWORD"),
		SMTP_FROM:     os.Getenv("SMTP_FROM"),
		// HTTP
		ALLOWED_ORIGINS: allowedOrigins,
		FRONTEND_URL:    os.Getenv("FRONTEND_URL"),
		CRON_ENABLED:    os.Getenv("CRON_ENABLED") != "false", // Default to enabled
	}

	return envVariables, nil
}
