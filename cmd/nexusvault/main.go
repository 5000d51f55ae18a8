package main

import "github.com/0xn1ku/nexusvault/cmd/nexusvault/cmd"

func main() {
	cmd.Execute()
}
