package main

import "github.com/BioHazard786/chatterbox/cmd"

func main() {
	cmd.Execute()
}
