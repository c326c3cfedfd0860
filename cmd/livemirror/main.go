// livemirror mirrors a source tree and live-reloads connected browsers.
package main

import (
	"os"

	"github.com/hupe1980/livemirror/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
