package main

import (
	"fmt"
	"os"

	"github.com/tillberg/autorestart"

	"github.com/soyeahso/botrelay/internal/cli"
)

func main() {
	// re-exec when the binary is rebuilt, for local development
	if os.Getenv("BOTRELAY_AUTORESTART") == "1" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "botrelay:", err)
		os.Exit(1)
	}
}
