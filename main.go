package main

import "tinyimg/cmd"

func main() {
	cmd.Execute()
}
