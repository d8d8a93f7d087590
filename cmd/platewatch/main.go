package main

import (
	"context"

	"platewatch/cmd/platewatch/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
