package main

import "gamebridge/cmd/cli/command"

func main() {
	command.Execute()
}
