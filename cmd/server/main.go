package main

import (
	"fmt"
	"os"

	"github.com/licoproject/lico-core/pkg/app"
	"github.com/licoproject/lico-core/server"
)

func main() {
	if err := app.Run(server.NewCoreServer()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
