package main

import "github.com/oshokin/offline-pip/cmd/offline-pip/cmd"

func main() {
	cmd.Execute()
}
