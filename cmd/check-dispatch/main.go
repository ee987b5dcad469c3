package main

import "github.com/coreeng/check-dispatch/internal/cli"

func main() {
	cli.Execute()
}
