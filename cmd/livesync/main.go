package main

import "github.com/vanpelt/livesync/internal/cmd"

func main() {
	cmd.Execute()
}
