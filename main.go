package main

import "github.com/redbadger/deployhook/cmd"

func main() {
	cmd.Execute()
}
