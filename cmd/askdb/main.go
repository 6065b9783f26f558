package main

import (
	"os"

	"github.com/ekaya-inc/ekaya-askdb/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
