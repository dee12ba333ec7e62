package main

import "github.com/frahmantamala/care-access/cmd"

func main() {
	cmd.Execute()
}
