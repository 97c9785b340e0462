package main

import "github.com/tanq16/batchfetch/cmd"

func main() {
	cmd.Execute()
}
