package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	Payments struct {
		// Sandbox switches to the in-process processor; GatewayURL is only
		// consulted when it is off.
		Sandbox        bool
		GatewayURL     string `mapstructure:"gateway_url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"payments"`

	Billing struct {
		Currency              string
		DowngradeCredit       bool `mapstructure:"downgrade_credit"`
		PendingRecheckMinutes int  `mapstructure:"pending_recheck_minutes"`
	} `mapstructure:"billing"`

	Schedules struct {
		Expiry    string
		Renewal   string
		Reconcile string
	} `mapstructure:"schedules"`
}

func Load(path string) (Config, error) {
	_ = gotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("billing.currency", "USD")
	v.SetDefault("payments.timeout_seconds", 30)
	v.SetDefault("billing.pending_recheck_minutes", 15)
	v.SetDefault("schedules.expiry", "@hourly")
	v.SetDefault("schedules.renewal", "@hourly")
	v.SetDefault("schedules.reconcile", "*/10 * * * *")

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	if c.Postgres.DSN == "" {
		return c, fmt.Errorf("config: postgres.dsn is required")
	}
	return c, nil
}
