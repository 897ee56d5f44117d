package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DBConfig holds both connection strings. The read-only DSN is used by the AI
// assistant so that generated SQL can never write.
type DBConfig struct {
	PrimaryDSN  string
	ReadOnlyDSN string
}

type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PaymentURL string
	ReturnURL  string
	ResultURL  string // front-end page the callback redirects to
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type FluentBitConfig struct {
	Enabled bool
	Host    string
	Port    int
	Level   string
}

type ExpirationConfig struct {
	Schedule    string
	Timeout     time.Duration
	GracePeriod time.Duration
	BasicRole   string
	QueueSize   int
}

// AppConfig is the whole application configuration, loaded once at startup.
type AppConfig struct {
	AppName     string
	Port        string
	BaseURL     string
	JWTSecret   string
	CORSOrigins []string
	LogLevel    string
	UploadDir   string

	GeminiAPIKey string
	GeminiModel  string

	Database   DBConfig
	VNPay      VNPayConfig
	Redis      RedisConfig
	S3         S3Config
	FluentBit  FluentBitConfig
	Expiration ExpirationConfig
}

// Load reads an optional .env file and then the process environment.
func Load(envPath ...string) (*AppConfig, error) {
	var err error
	if len(envPath) > 0 {
		err = godotenv.Load(envPath[0])
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		log.Println("WARNING: Could not find or load .env file. Relying on system environment variables.")
	}

	cfg := &AppConfig{
		AppName:      getEnvAsString("APP_NAME", "homelengo"),
		Port:         getEnvAsString("PORT", "8080"),
		BaseURL:      getEnvAsString("BASE_URL", "http://localhost:8080"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		CORSOrigins:  splitList(getEnvAsString("CORS_ORIGINS", "http://localhost:5173")),
		LogLevel:     getEnvAsString("LOG_LEVEL", "info"),
		UploadDir:    getEnvAsString("UPLOAD_DIR", "./uploads"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnvAsString("GEMINI_MODEL", "gemini-1.5-flash"),
	}

	cfg.Database.PrimaryDSN = os.Getenv("DB_DSN_PRIMARY")
	if cfg.Database.PrimaryDSN == "" {
		return nil, fmt.Errorf("DB_DSN_PRIMARY environment variable is required")
	}
	cfg.Database.ReadOnlyDSN = getEnvAsString("DB_DSN_READONLY", cfg.Database.PrimaryDSN)

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg.VNPay = VNPayConfig{
		TmnCode:    os.Getenv("VNPAY_TMN_CODE"),
		HashSecret: os.Getenv("VNPAY_HASH_SECRET"),
		PaymentURL: getEnvAsString("VNPAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
		ReturnURL:  getEnvAsString("VNPAY_RETURN_URL", cfg.BaseURL+"/api/payments/vnpay-return"),
		ResultURL:  getEnvAsString("PAYMENT_RESULT_URL", "http://localhost:5173/payment/result"),
	}
	if cfg.VNPay.TmnCode == "" || cfg.VNPay.HashSecret == "" {
		return nil, fmt.Errorf("VNPAY_TMN_CODE and VNPAY_HASH_SECRET environment variables are required")
	}

	cfg.Redis = RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvAsInt("REDIS_DB", 0),
	}

	cfg.S3 = S3Config{
		Bucket:          os.Getenv("S3_BUCKET"),
		Region:          getEnvAsString("S3_REGION", "ap-southeast-1"),
		Endpoint:        os.Getenv("S3_ENDPOINT"),
		AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
	}

	cfg.FluentBit.Enabled = getEnvAsBool("FLUENTBIT_ENABLED", false)
	if cfg.FluentBit.Enabled {
		cfg.FluentBit.Host = os.Getenv("FLUENTBIT_HOST")
		if cfg.FluentBit.Host == "" {
			log.Println("WARNING: FLUENTBIT_ENABLED is true, but FLUENTBIT_HOST is not set. Disabling Fluent Bit.")
			cfg.FluentBit.Enabled = false
		}
		cfg.FluentBit.Port = getEnvAsInt("FLUENTBIT_PORT", 24224)
		cfg.FluentBit.Level = getEnvAsString("FLUENTBIT_LOG_LEVEL", "info")
	}

	cfg.Expiration = ExpirationConfig{
		Schedule:    getEnvAsString("EXPIRATION_SCHEDULE", "@every 1h"),
		Timeout:     getEnvAsDuration("EXPIRATION_TIMEOUT", 10*time.Minute),
		GracePeriod: getEnvAsDuration("GRACE_PERIOD", 0),
		BasicRole:   getEnvAsString("BASIC_ROLE_NAME", "User"),
		QueueSize:   getEnvAsInt("LOGIN_CHECK_QUEUE_SIZE", 256),
	}

	return cfg, nil
}

func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as int: %v. Using default value: %d\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return valueInt
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valBool, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as bool: %v. Using default value: %t\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return valBool
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	d, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as duration: %v. Using default value: %s\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
