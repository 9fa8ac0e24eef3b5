package main

import "stratlink/cmd/stratlinkctl/command"

func main() {
	command.Execute()
}
