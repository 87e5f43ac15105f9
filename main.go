package main

import (
	"homewatch/internal/cli"
)

func main() {
	cli.Execute()
}
