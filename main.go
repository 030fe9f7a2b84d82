package main

import "gemtrail/cmd"

func main() {
	cmd.Execute()
}
