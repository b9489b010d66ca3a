// Package config resolves operator-facing configuration: log verbosity,
// SSH credentials for RemoteExec, and the AWS region/credential chain
// backing every Cloud Adapter. Values are sourced from viper so they can
// come from flags, environment variables, or an optional config file,
// layered under cobra's persistent flags on the command tree.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds the resolved, process-wide settings a fleetroll invocation
// needs before it can build Cloud Adapters.
type Config struct {
	// LogDevelopment selects human-readable console logging instead of
	// JSON; set via --log-format=console or FLEETROLL_LOG_FORMAT=console.
	LogDevelopment bool

	// AWSRegion overrides the SDK's default region resolution when set.
	AWSRegion string

	// SSHUser and SSHKeyPath configure the RemoteExec adapter's SSH auth.
	SSHUser    string
	SSHKeyPath string

	// AuditEnabled toggles internal/audit event emission.
	AuditEnabled bool
}

// BindPersistentFlags registers the flags common to every subcommand on
// root and binds them into v, so Load can read them back regardless of
// whether they came from a flag, an environment variable, or a config
// file.
func BindPersistentFlags(root *cobra.Command, v *viper.Viper) {
	root.PersistentFlags().String("log-format", "json", "Log output format: json or console")
	root.PersistentFlags().String("aws-region", "", "AWS region override (defaults to the standard SDK resolution chain)")
	root.PersistentFlags().String("ssh-user", "ec2-user", "Username for SSH remote command execution")
	root.PersistentFlags().String("ssh-key", "", "Path to the private key used for SSH remote command execution")
	root.PersistentFlags().Bool("audit", true, "Emit structured audit events for each state transition")

	_ = v.BindPFlag("log-format", root.PersistentFlags().Lookup("log-format"))
	_ = v.BindPFlag("aws-region", root.PersistentFlags().Lookup("aws-region"))
	_ = v.BindPFlag("ssh-user", root.PersistentFlags().Lookup("ssh-user"))
	_ = v.BindPFlag("ssh-key", root.PersistentFlags().Lookup("ssh-key"))
	_ = v.BindPFlag("audit", root.PersistentFlags().Lookup("audit"))
}

// New builds a viper instance that reads FLEETROLL_-prefixed environment
// variables and an optional $HOME/.fleetroll.yaml, matching the layered
// precedence (flag > env > file > default) viper provides out of the box.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FLEETROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.SetConfigName(".fleetroll")
	v.SetConfigType("yaml")
	_ = v.ReadInConfig() // absent config file is not an error

	return v
}

// Load resolves a Config from v after flags have been parsed and bound.
func Load(v *viper.Viper) *Config {
	return &Config{
		LogDevelopment: v.GetString("log-format") == "console",
		AWSRegion:      v.GetString("aws-region"),
		SSHUser:        v.GetString("ssh-user"),
		SSHKeyPath:     v.GetString("ssh-key"),
		AuditEnabled:   v.GetBool("audit"),
	}
}

// LoadAWSConfig resolves an aws.Config using the standard SDK credential
// chain (environment, shared config/credentials files, EC2/ECS instance
// role), honoring cfg.AWSRegion when set. No credentials are ever read
// from a fleetroll-specific file.
func (c *Config) LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(c.AWSRegion))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}
