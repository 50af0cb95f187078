package main

import "github.com/vibast-solutions/ms-go-logistics/cmd"

func main() {
	cmd.Execute()
}
