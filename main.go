package main

import (
	"fmt"
	"os"

	"github.com/featherchain/featherd/app"
)

func main() {
	err := app.StartApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
