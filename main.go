package main

import "github.com/renmiamu/dvnet/cmd"

func main() {
	cmd.Execute()
}
