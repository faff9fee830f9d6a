package main

import (
	"leadscout/cmd/leadscout/cmd"
)

func main() {
	cmd.Execute()
}
