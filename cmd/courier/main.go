// Command courier downloads, uploads and fetches data over HTTP.
package main

import (
	"os"

	"github.com/meigma/courier/cmd/courier/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
