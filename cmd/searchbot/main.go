package main

import (
	"log"

	"medbot/internal/app"
	"medbot/internal/conversation"
)

func main() {
	application, err := app.New(conversation.SearchBot)
	if err != nil {
		log.Fatal(err)
	}

	if err := application.Run(); err != nil {
		log.Fatal(err)
	}
}
