package main

import "github.com/MarcinSachs/libriya/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
