package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервиса.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"10000"`

	Portal struct {
		LoginURL   string        `envconfig:"WEBSITE_URL" default:"https://www.ivasms.com/login"`
		LiveSMSURL string        `envconfig:"LIVE_SMS_URL" default:"https://www.ivasms.com/portal/live/my_sms"`
		Email      string        `envconfig:"WEBSITE_EMAIL"`
		Password   string        `envconfig:"WEBSITE_PASSWORD"`
		Timeout    time.Duration `envconfig:"PORTAL_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Telegram struct {
		Token  string `envconfig:"TELEGRAM_BOT_TOKEN"`
		ChatID int64  `envconfig:"TELEGRAM_CHAT_ID"`
	} `envconfig:""`

	Monitor struct {
		PollInterval     time.Duration `envconfig:"CHECK_INTERVAL" default:"2s"`
		SessionTTL       time.Duration `envconfig:"SESSION_TIMEOUT" default:"24h"`
		LoginRetries     int           `envconfig:"MAX_RETRIES" default:"3"`
		LoginBaseDelay   time.Duration `envconfig:"LOGIN_BASE_DELAY" default:"60s"`
		FailureThreshold int           `envconfig:"FAILURE_THRESHOLD" default:"5"`
		FailureCooldown  time.Duration `envconfig:"FAILURE_COOLDOWN" default:"10m"`
		DispatchWorkers  int           `envconfig:"DISPATCH_WORKERS" default:"4"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения. Файл .env, если он есть,
// подхватывается до чтения переменных.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
