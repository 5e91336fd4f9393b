// Package cmdutil carries the glue shared by every entrypoint: logger
// construction, environment binding for flags, and default identifiers.
package cmdutil

import (
	"strings"

	"github.com/rs/xid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Logger builds the process logger. Verbose mode uses the human-oriented
// development encoder; otherwise JSON production output.
func Logger(verbose bool) *zap.Logger {
	if verbose {
		return zap.Must(zap.NewDevelopment())
	}
	return zap.Must(zap.NewProduction())
}

// BindEnv makes every flag of cmd overridable through RC_<FLAG> environment
// variables (dashes become underscores). Explicit flags win over the
// environment.
func BindEnv(cmd *cobra.Command) {
	v := viper.New()
	v.SetEnvPrefix("RC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && v.IsSet(f.Name) {
			cmd.Flags().Set(f.Name, v.GetString(f.Name))
		}
	})
}

// DefaultID returns id, or a fresh generated identifier when empty.
func DefaultID(id string) string {
	if id != "" {
		return id
	}
	return xid.New().String()
}
