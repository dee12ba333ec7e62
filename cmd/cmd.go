package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "care-access",
	Short: "Care Access",
	Long:  `Access resolution and adaptive routing for the healthcare admin console.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads config.yml from path when present. Environment variables
// prefixed CARE_ACCESS_ override file values, e.g. CARE_ACCESS_DATABASE_SOURCE.
func loadConfig(path string) (*internal.Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("CARE_ACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	logger.Configure(os.Stdout, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	return &cfg, nil
}

// bindEnv registers keys that may come only from the environment; AutomaticEnv
// alone does not populate Unmarshal for keys missing from the file.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"http_server.port",
		"http_server.allowed_origins",
		"database.source",
		"redis.addr",
		"redis.password",
		"security.jwt_secret",
		"security.access_token_duration",
		"preferences.backend",
		"expiry.enabled",
		"rate_limit.enabled",
		"observability.logging.level",
		"observability.logging.format",
	} {
		_ = v.BindEnv(key)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-dir", ".", "directory holding config.yml")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(tokenCmd)
}
