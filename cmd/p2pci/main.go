package main

import "github.com/rudransh-shrivastava/p2p-ci/internal/cmd"

func main() {
	cmd.Execute()
}
