package main

import "github.com/tilboerner/cherrymusic-rewrite/cmd"

func main() {
	cmd.Execute()
}
