package main

import "github.com/nimec77/deepseek-json/frontend/cli/cmd"

func main() {
	cmd.Execute()
}
