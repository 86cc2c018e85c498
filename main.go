package main

import "github.com/moyoez/localsend-session/cmd"

func main() {
	cmd.Execute()
}
