package main

import (
	"fmt"
	"os"

	"github.com/metinatakli/cinex-booking/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "cinex-booking: %v\n", err)
		os.Exit(1)
	}
}
