package main

import "lifeblocks/api/cmd/lbctl/cmd"

func main() {
	cmd.Execute()
}
