// Package configcmd prints the effective configuration with secrets redacted.
package configcmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/openkcm/journal-gateway/internal/cmdutils"
	"github.com/openkcm/journal-gateway/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"config",
		"Print the effective configuration",
		"Print the configuration the gateway would run with, defaults applied and embedded secrets redacted.",
		buildInfo,
		cmdutils.RunAsJob,
		func(_ context.Context, cfg *config.Config) error {
			return write(os.Stdout, cfg)
		},
	)
}

func write(w io.Writer, cfg *config.Config) error {
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("marshalling configuration: %w", err)
	}

	_, err = w.Write(out)

	return err
}
