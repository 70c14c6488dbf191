package main

import "github.com/nickthorpe71/legend/cmd/legend/cli"

func main() {
	cli.Execute()
}
