package main

import "farmiot/cmd"

func main() {
	cmd.Execute()
}
