package main

import "go-ytqueue/cmd/ytqueue/cmd"

func main() {
	cmd.Execute()
}
