package main

import "github.com/masquebot/masquebot/cmd"

func main() {
	cmd.Execute()
}
