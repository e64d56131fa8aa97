package main

import (
	"os"

	"metricd/internal/runctl"
)

func main() {
	os.Exit(runctl.Execute(os.Args[1:]))
}
