package main

import (
	"log"
	"os"

	"github.com/imagesmith/imagesmith/pkg/cli"
)

func main() {
	app := cli.NewApp()
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
