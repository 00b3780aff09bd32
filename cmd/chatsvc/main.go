package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	log "github.com/sirupsen/logrus"

	config "github.com/jidehen/smart-sdk-travel-agent/configs"
	"github.com/jidehen/smart-sdk-travel-agent/internal/chatsvc/client"
	"github.com/jidehen/smart-sdk-travel-agent/internal/chatsvc/relay"
	"github.com/jidehen/smart-sdk-travel-agent/internal/comm"
	natscli "github.com/jidehen/smart-sdk-travel-agent/internal/nats"
)

const SERVICE_NAME = "chat"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	endpoint := os.Getenv("GATE_WS_URL")
	if endpoint == "" {
		endpoint = "ws://localhost:8081/v1/ws"
	}
	if userId := os.Getenv("CHAT_USER_ID"); userId != "" {
		endpoint += "?user=" + userId
	}

	hooks := client.Hooks{
		OnEntry: printEntry,
		OnCards: printCards,
		OnState: printState,
	}

	// Mirror session events onto NATS when a broker is configured.
	if os.Getenv("NATS_URL") != "" {
		n, err := natscli.Connect()
		if err != nil {
			log.Fatalf("unable to connect to NATS server %v", err)
		}
		defer n.Conn.Close()
		log.Infof("NATS connection established successfully %s", n.Url)
		hooks = relay.NewRelay(n.Conn).Hooks(hooks)
	}

	c := client.New(client.Config{Endpoint: endpoint}, hooks)
	defer c.Shutdown()
	c.Connect()

	fmt.Println("\nWelcome to the Travel Assistant!")
	fmt.Println("I can help you plan your travel and optimize your payment methods.")
	fmt.Println("Type 'exit' or 'quit' to end the conversation.")
	fmt.Println("\nExample queries:")
	fmt.Println("- Search for flights from New York to London")
	fmt.Println("- What payment methods do I have available?")
	fmt.Println("- Which card should I use for my flight purchase?")
	fmt.Println("- Compare the benefits of my cards for travel purchases")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	fmt.Print("\nUser: ")
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				fmt.Println("\nEnding conversation.")
				return
			}
			input := strings.TrimSpace(line)
			if input == "" {
				fmt.Print("User: ")
				continue
			}
			if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
				log.Info("user requested to end conversation")
				fmt.Println("Ending conversation.")
				return
			}
			if err := c.Send(input); err != nil {
				if errors.Is(err, client.ErrNotConnected) {
					fmt.Println("[not connected to the assistant yet, reconnecting ...]")
				} else {
					fmt.Printf("[send failed: %v]\n", err)
				}
			}
			fmt.Print("User: ")
		case <-stop:
			fmt.Println("\nEnding conversation.")
			return
		}
	}
}

func printEntry(entry comm.ChatEntry) {
	if entry.Originator != comm.OriginatorAssistant {
		return // the user just typed it
	}
	fmt.Printf("\nAssistant: %s\n", entry.Text)
	fmt.Print("User: ")
}

func printCards(cards []comm.CardRecord) {
	if len(cards) == 0 {
		return
	}
	fmt.Println("\nYour payment methods:")
	for _, card := range cards {
		fmt.Printf("  - %s (%s) ending %s, nickname %s\n", card.Brand, card.Type, card.Last4Digits, card.Nickname)
	}
}

func printState(state client.State, err error) {
	switch {
	case err != nil:
		fmt.Printf("\n[%v]\n", err)
	case state == client.StateOpen:
		fmt.Println("\n[connected to the assistant]")
	}
}
