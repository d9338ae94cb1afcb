/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/ssargent/tweetdb/cmd/tweetdb/cmd"

func main() {
	cmd.Execute()
}
