package main

import "github.com/oplink/sessionsync/cmd/sessionsync/cmd"

func main() {
	cmd.Execute()
}
