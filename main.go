package main

import "github.com/johndoe31415/luksipc/cmd"

func main() {
	cmd.Execute()
}
