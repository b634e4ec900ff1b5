package main

import (
	"log"

	"zarrvault/cmd/zv/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
