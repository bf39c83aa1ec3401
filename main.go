// Package main is the entry point for the mutexec CLI.
package main

import "gooze.dev/pkg/mutexec/cmd"

func main() {
	cmd.Execute()
}
