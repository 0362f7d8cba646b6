package main

import "github.com/fyerfyer/embedpool/cmd/poolctl/cmd"

func main() {
	cmd.Execute()
}
