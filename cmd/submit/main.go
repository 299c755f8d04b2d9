package main

import "github.com/SLAMon/SLAMon/services/submitter/cli"

func main() {
	cli.Execute()
}
