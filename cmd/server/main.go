package main

import "sweepnspect/cmd/cli"

func main() {
	cli.Execute()
}
