package main

import "github.com/crystaldolphin/chatrelay/cmd"

func main() {
	cmd.Execute()
}
