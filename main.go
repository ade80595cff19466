package main

import "github.com/CosmoTheDev/devsecwatch-worker/cmd"

func main() {
	cmd.Execute()
}
