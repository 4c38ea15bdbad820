package main

import (
	cmd "github.com/smartscale/scale-server/cmd/smartscale"
)

func main() {
	cmd.Execute()
}
