package main

import "github.com/agime-dev/agimectl/internal/cli"

func main() {
	cli.Execute()
}
