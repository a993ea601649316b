package main

import (
	"fmt"
	"io"
	"os"

	app "github.com/valter-silva-au/tasker/internal"
	"github.com/valter-silva-au/tasker/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	basePath := app.ResolveBasePath()

	cli.Setup = func(opts cli.GlobalOptions) (io.Closer, error) {
		a, err := app.NewApp(basePath, app.Options{
			APIURL:    opts.APIURL,
			Verbose:   opts.Verbose,
			UserAgent: "tasker/" + version,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing tasker: %w", err)
		}
		return a, nil
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
