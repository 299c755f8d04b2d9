package main

import "github.com/SLAMon/SLAMon/services/agent/cli"

func main() {
	cli.Execute()
}
