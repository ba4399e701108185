package main

import "github.com/mcoot/sailsync/internal/cli"

func main() {
	cli.Execute()
}
