/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>

*/
package main

import "github.com/calicofm/spinlog/cmd"

func main() {
	cmd.Execute()
}
