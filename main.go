package main

import "github.com/embeddb/embeddb/cmd"

func main() {
	cmd.Execute()
}
