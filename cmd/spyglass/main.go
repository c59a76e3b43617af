package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	// Dispatch to subcommand
	switch command {
	case "inspect":
		runInspect(os.Args[2:])
	case "resolve":
		runResolve(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`spyglass - Managed-runtime diagnostic artifact resolver

Usage:
  spyglass <command> [options]

Commands:
  inspect  Print identity and version information for a binary image
  resolve  Detect managed runtimes in a target and list support-library candidates

Use "spyglass <command> --help" for more information about a command.`)
}
