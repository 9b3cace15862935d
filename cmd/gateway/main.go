package main

import "vision-gateway-go/internal/cli"

func main() {
	cli.Execute()
}
