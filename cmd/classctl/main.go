package main

import "github.com/LingByte/EchoClass/cmd/classctl/cmd"

func main() {
	cmd.Execute()
}
