package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	S3BucketName   string
	PresignTTL     time.Duration

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string

	NotifierMode        string // "provider" | "mock"
	NotifyTemplatesPath string // optional TOML override of the embedded catalog
	PublicBaseURL       string // used to build owner response links

	ShareSealingKey string // 32-byte hex key

	GracePeriodDays   int
	EmailIntervalDays int
	PhoneIntervalDays int
	ResponseTokenTTL  time.Duration
	SchedulerInterval time.Duration

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users              string
	Switches           string
	Beneficiaries      string
	Links              string
	Claims             string
	VerificationEvents string
	ResponseTokens     string
	Deliveries         string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:              getEnv("DYNAMO_TABLE_USERS", "users"),
			Switches:           getEnv("DYNAMO_TABLE_SWITCHES", "switches"),
			Beneficiaries:      getEnv("DYNAMO_TABLE_BENEFICIARIES", "beneficiaries"),
			Links:              getEnv("DYNAMO_TABLE_LINKS", "links"),
			Claims:             getEnv("DYNAMO_TABLE_CLAIMS", "death_claims"),
			VerificationEvents: getEnv("DYNAMO_TABLE_VERIFICATION_EVENTS", "verification_events"),
			ResponseTokens:     getEnv("DYNAMO_TABLE_RESPONSE_TOKENS", "response_tokens"),
			Deliveries:         getEnv("DYNAMO_TABLE_DELIVERIES", "deliveries"),
		},
		S3BucketName:        getEnv("S3_BUCKET_NAME", "dead-mans-switch-files"),
		PresignTTL:          getEnvDuration("S3_PRESIGN_TTL", 7*24*time.Hour),
		JWTPrivateKeyPath:   getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:    getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:           time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,
		SMTPHost:            getEnv("SMTP_HOST", "localhost"),
		SMTPPort:            getEnv("SMTP_PORT", "1025"),
		SMTPFrom:            getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SNSRegion:           getEnv("SNS_REGION", "us-east-1"),
		NotifierMode:        getEnv("NOTIFIER_MODE", "provider"),
		NotifyTemplatesPath: getEnv("NOTIFY_TEMPLATES_PATH", ""),
		PublicBaseURL:       getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),
		ShareSealingKey:     getEnv("SHARE_SEALING_KEY", ""),
		GracePeriodDays:     getEnvInt("GRACE_PERIOD_DAYS", 7),
		EmailIntervalDays:   getEnvInt("EMAIL_INTERVAL_DAYS", 7),
		PhoneIntervalDays:   getEnvInt("PHONE_INTERVAL_DAYS", 3),
		ResponseTokenTTL:    getEnvDuration("RESPONSE_TOKEN_TTL", 30*24*time.Hour),
		SchedulerInterval:   getEnvDuration("SCHEDULER_INTERVAL", 24*time.Hour),
		AllowedOrigins:      strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
