package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/contentmigrator/cmd/contentmigrator/commands"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("contentmigrator"),
		kong.Description("Resumable content migration between endpoints"),
		kong.Vars{"version": version.Version},
		kong.UsageOnError(),
	)

	err := parser.Run(&commands.Global{Logger: slog.Default()}, cli)
	if err == nil {
		return
	}
	var exit *commands.ExitError
	if errors.As(err, &exit) {
		os.Exit(exit.Code)
	}
	merrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
