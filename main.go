package main

import "dsatutor/cmd"

func main() {
	cmd.Execute()
}
