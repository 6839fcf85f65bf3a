package main

import "github.com/Alijeyrad/ehms_backend/cmd"

func main() {
	cmd.Execute()
}
