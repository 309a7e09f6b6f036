package config

import "time"

type PaymentConfig struct {
	PagoFacil      *PagoFacilConfig `yaml:"pagofacil"`
	Stripe         *StripeConfig    `yaml:"stripe"`
	GatewayTimeout time.Duration    `yaml:"gateway_timeout"`
}

type PagoFacilConfig struct {
	APIURL            string `yaml:"api_url"`
	QueryURL          string `yaml:"query_url"`
	APIToken          string `yaml:"api_token"`
	CallbackURL       string `yaml:"callback_url"`
	CorrelationPrefix string `yaml:"correlation_prefix"`
}

type StripeConfig struct {
	PublishableKey string  `yaml:"publishable_key"`
	SecretKey      string  `yaml:"secret_key"`
	WebhookSecret  string  `yaml:"webhook_secret"`
	MinimumUSD     float64 `yaml:"minimum_usd"`
}

func loadPaymentConfig() *PaymentConfig {
	return &PaymentConfig{
		PagoFacil: &PagoFacilConfig{
			APIURL:            getEnv("PAGOFACIL_API_URL", "https://masterqr.pagofacil.com.bo/api/services/pagoqr"),
			QueryURL:          getEnv("PAGOFACIL_QUERY_URL", "https://masterqr.pagofacil.com.bo/api/services/consultartransaccion"),
			APIToken:          getEnv("PAGOFACIL_API_TOKEN", ""),
			CallbackURL:       getEnv("PAGOFACIL_CALLBACK_URL", ""),
			CorrelationPrefix: getEnv("PAGOFACIL_CORRELATION_PREFIX", "transcomarapa"),
		},
		Stripe: &StripeConfig{
			PublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
			SecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
			MinimumUSD:     getEnvAsFloat64("STRIPE_MINIMUM_USD", 0.50),
		},
		GatewayTimeout: getEnvAsDuration("PAYMENT_GATEWAY_TIMEOUT", 15*time.Second),
	}
}
