package main

import (
	"log"

	"github.com/xenonwellz/autoplybot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
