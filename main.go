package main

import "github.com/edgeflare/restless/cmd/restless"

func main() {
	restless.Main()
}
