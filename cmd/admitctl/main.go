package main

import (
	"github.com/admitd/admitd/internal/cli"
)

func main() {
	cli.Execute()
}
