package main

import "github.com/kiesman99/pixelsort/cmd"

func main() {
	cmd.Execute()
}
