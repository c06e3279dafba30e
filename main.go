package main

import "github.com/ValentinKolb/kvs/cmd"

func main() {
	cmd.Execute()
}
