package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (optional; dedupe fast path + rate limiting)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Dispatch
	Timezone      string // fixed civil timezone for work-time comparisons
	WindowMinutes int    // dispatch window after a configured work time
	CronEnabled   bool   // run the dispatcher on an internal ticker
	CronInterval  time.Duration

	// Push provider
	PushDriver       string // "sns", "webpush" or "log"
	SNSRegion        string
	VAPIDPublicKey   string
	VAPIDPrivateKey  string
	VAPIDSubscriber  string // contact address sent to the push service
	PushBreakerOn    bool   // wrap the push sender in a circuit breaker

	// AWS extras (optional)
	AWSRegion       string
	SESFromEmail    string
	SummaryEmail    string // ops address for run summaries; empty disables
	SQSAuditQueue   string // audit event queue URL; empty disables
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "foreman",
		DBPassword: "",
		DBName:     "paintconnect",
		DBSSLMode:  "disable",

		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		// Work times in the project table are stored as bare local
		// time-of-day, so every comparison happens in one fixed zone.
		Timezone:      "Europe/Amsterdam",
		WindowMinutes: 5,
		CronInterval:  time.Minute,

		PushDriver:      "log",
		VAPIDSubscriber: "ops@paintconnect.app",
		PushBreakerOn:   true,

		AWSRegion:    "eu-west-1",
		SESFromEmail: "noreply@paintconnect.app",
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Dispatch config
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
		}
		cfg.Timezone = tz
	}

	if window := os.Getenv("DISPATCH_WINDOW_MIN"); window != "" {
		w, err := strconv.Atoi(window)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid DISPATCH_WINDOW_MIN: %q", window)
		}
		cfg.WindowMinutes = w
	}

	if enabled := os.Getenv("CRON_ENABLED"); enabled != "" {
		b, err := strconv.ParseBool(enabled)
		if err != nil {
			return nil, fmt.Errorf("invalid CRON_ENABLED: %w", err)
		}
		cfg.CronEnabled = b
	}

	if interval := os.Getenv("CRON_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid CRON_INTERVAL: %w", err)
		}
		cfg.CronInterval = d
	}

	// Push provider config
	if driver := os.Getenv("PUSH_DRIVER"); driver != "" {
		switch driver {
		case "sns", "webpush", "log":
			cfg.PushDriver = driver
		default:
			return nil, fmt.Errorf("invalid PUSH_DRIVER: %q (sns, webpush or log)", driver)
		}
	}

	if key := os.Getenv("VAPID_PUBLIC_KEY"); key != "" {
		cfg.VAPIDPublicKey = key
	}

	if key := os.Getenv("VAPID_PRIVATE_KEY"); key != "" {
		cfg.VAPIDPrivateKey = key
	}

	if sub := os.Getenv("VAPID_SUBSCRIBER"); sub != "" {
		cfg.VAPIDSubscriber = sub
	}

	if breaker := os.Getenv("PUSH_BREAKER"); breaker != "" {
		b, err := strconv.ParseBool(breaker)
		if err != nil {
			return nil, fmt.Errorf("invalid PUSH_BREAKER: %w", err)
		}
		cfg.PushBreakerOn = b
	}

	// AWS config
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	if to := os.Getenv("SUMMARY_EMAIL"); to != "" {
		cfg.SummaryEmail = to
	}

	if url := os.Getenv("SQS_AUDIT_QUEUE_URL"); url != "" {
		cfg.SQSAuditQueue = url
	}

	return cfg, nil
}
