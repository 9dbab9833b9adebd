package main

import (
	"whalewatch/internal/cli"
)

func main() {
	cli.Execute()
}
