package main

import (
	"os"

	"github.com/arafat3300/propmatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
