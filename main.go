package main

import "loopscan/cmd"

func main() {
	cmd.Execute()
}
