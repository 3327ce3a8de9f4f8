// Package config builds the process configuration from a YAML file,
// environment variables and command-line flags, in ascending precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BankCredentials are the comdirect API credentials. They only ever come
// from the environment or the config file, never from flags, so they
// cannot leak into shell history.
type BankCredentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

type Config struct {
	ListenAddr string
	DataDir    string
	YnabToken  string
	Bank       BankCredentials
}

// Build loads configuration: explicit config file (or ./config.yaml),
// then COMSYNC_* environment variables, then flag overrides.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("listen_addr", "0.0.0.0:3000")
	v.SetDefault("data_dir", ".")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("COMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// The implicit default config file is optional; an explicitly
		// named one must exist.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return &Config{
		ListenAddr: v.GetString("listen_addr"),
		DataDir:    v.GetString("data_dir"),
		YnabToken:  v.GetString("ynab_token"),
		Bank: BankCredentials{
			ClientID:     v.GetString("bank.client_id"),
			ClientSecret: v.GetString("bank.client_secret"),
			Username:     v.GetString("bank.username"),
			Password:     v.GetString("bank.password"),
		},
	}, nil
}

// Validate checks the fields the sync pipeline cannot run without.
func (c *Config) Validate() error {
	if c.YnabToken == "" {
		return fmt.Errorf("ynab_token is required (COMSYNC_YNAB_TOKEN)")
	}
	if c.Bank.ClientID == "" || c.Bank.ClientSecret == "" {
		return fmt.Errorf("bank client credentials are required (COMSYNC_BANK_CLIENT_ID, COMSYNC_BANK_CLIENT_SECRET)")
	}
	if c.Bank.Username == "" || c.Bank.Password == "" {
		return fmt.Errorf("bank user credentials are required (COMSYNC_BANK_USERNAME, COMSYNC_BANK_PASSWORD)")
	}
	return nil
}

// Redacted returns a copy safe for printing: secrets are masked.
func (c *Config) Redacted() Config {
	out := *c
	out.YnabToken = mask(out.YnabToken)
	out.Bank.ClientSecret = mask(out.Bank.ClientSecret)
	out.Bank.Password = mask(out.Bank.Password)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
