package main

import (
	"os"

	"github.com/nomicfoundation/sitedata/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
