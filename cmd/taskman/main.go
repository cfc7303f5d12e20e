package main

import "github.com/chrischaps/TaskMan-sub000/internal/cli"

func main() {
	cli.Execute()
}
