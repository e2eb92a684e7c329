package main

import "github.com/andresmejia3/faceoverlay/cmd"

func main() {
	cmd.Execute()
}
