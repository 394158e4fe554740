package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	JWTSecret            string `env:"JWT_SECRET,required"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	MailDomain  string `env:"MAIL_DOMAIN" envDefault:"ld-csmlmail.test"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	SystemAPIURL            string `env:"SYSTEM_API_URL" envDefault:"http://localhost:3000/api"`
	SystemAPITimeoutSeconds int    `env:"SYSTEM_API_TIMEOUT_SECONDS" envDefault:"10"`

	// Variantes de despliegue: paso MAIL_CONFIGURED y tipo de identificador
	// secundario (phone|sim).
	MailConfiguredStep bool   `env:"STATUS_MAIL_CONFIGURED_STEP" envDefault:"false"`
	SecondaryIDKind    string `env:"SECONDARY_ID_KIND" envDefault:"phone"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction indica si el servicio corre en ambiente productivo.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
