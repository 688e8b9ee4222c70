package main

import "github.com/mvp-joe/treewatch/internal/cli"

func main() {
	cli.Execute()
}
