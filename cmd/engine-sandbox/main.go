// engine-sandbox runs the in-memory engine behind the stream, gRPC and HTTP
// bindings, and queries an engine from the command line.
package main

import (
	"context"

	"github.com/scott-cotton/cli"
	"go.uber.org/zap"
)

func main() {
	cli.MainContext(context.Background(), Root())
}

func Root() *cli.Command {
	return cli.NewCommand("engine-sandbox").
		WithSynopsis("engine-sandbox command [opts]").
		WithDescription("engine-sandbox serves a sample scan dataset and queries engines.").
		WithSubs(
			ServeCommand(),
			ScansCommand(),
			ColumnCommand(),
			MapsCommand(),
		)
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
