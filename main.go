package main

import (
	"context"
	"os"

	"github.com/compozy/docqa/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
