package main

import "github.com/metal-toolbox/assetkeeper/cmd"

func main() {
	cmd.Execute()
}
