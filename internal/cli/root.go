// Package cli implements the ceoorctl command line: a terminal front end
// for the game plus operator tools for the server.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/ceoorcto/pkg/logger"
)

// EnvURL overrides the default --url.
const EnvURL = "CEOORCTO_URL"

const defaultURL = "http://localhost:9080"

type rootOptions struct {
	url       string
	logLevel  string
	logFormat string
}

// NewRootCommand builds the ceoorctl command tree.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "ceoorctl",
		Short:         "Play CEO or CTO from a terminal and operate its server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(
				logger.WithOutput(cmd.ErrOrStderr()),
				logger.WithFormat(logger.Format(opts.logFormat)),
			); err != nil {
				return err
			}
			return logger.SetLevelString(opts.logLevel)
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	url := os.Getenv(EnvURL)
	if url == "" {
		url = defaultURL
	}
	root.PersistentFlags().StringVar(&opts.url, "url", url, "Base URL of the server (env "+EnvURL+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", string(logger.FormatText), "Log format: text or json")

	root.AddCommand(
		newPlayCommand(opts),
		newRankingsCommand(opts),
		newSimulateCommand(opts),
		newSeedCommand(),
	)
	return root
}
