package main

import "github.com/agentic-research/depview/cmd"

func main() {
	cmd.Execute()
}
