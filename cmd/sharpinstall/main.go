package main

import (
	"fmt"
	"os"
)

func main() {
	if err := New().Execute(); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "sharpinstall: %v\n", err)
	os.Exit(1)
}
