package main

import "github.com/lepinkainen/recto/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
