package main

import "github.com/meysamhadeli/unitcache/cmd"

func main() {
	cmd.Execute()
}
