package main

import "github.com/forPelevin/vidstamp/internal/cli"

func main() {
	cli.Main()
}
