package main

import "kmsload/cmd"

func main() {
	cmd.Execute()
}
