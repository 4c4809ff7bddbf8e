package main

import (
	"os"

	"reflectd/internal/testctl"
)

func main() {
	os.Exit(testctl.Main())
}
