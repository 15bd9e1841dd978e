/*
	Copyright 2023 Markus Papenbrock
*/

package main

import "github.com/xrpracing/racegarage/cmd"

func main() {
	cmd.Execute()
}
