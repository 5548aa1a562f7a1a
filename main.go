package main

import (
	"market-signal-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
