package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/journal-gateway/internal/business"
	"github.com/openkcm/journal-gateway/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Journal Gateway API server",
		"Journal Gateway API server hosts the public HTTP API: the login flow and the authenticated routes backed by the gRPC services.",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
