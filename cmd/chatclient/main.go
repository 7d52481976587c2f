// Package main is an interactive terminal client for the chat service.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flatmate/internal/api"
	"flatmate/internal/chatsync"
	"flatmate/internal/models"
	"flatmate/internal/realtime"
)

func main() {
	host := flag.String("host", "localhost:8419", "chat server host")
	email := flag.String("email", "tenant@example.com", "login email")
	password := flag.String("password", "password123", "login password")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	ctx := context.Background()

	client := api.NewClient(fmt.Sprintf("http://%s/api", *host), *timeout)
	client.OnUnauthorized(func() {
		log.Println("session invalidated by server, exiting")
		os.Exit(1)
	})

	token, profileID, role, err := client.Login(ctx, *email, *password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}
	fmt.Printf("logged in as %s (%s)\n", *email, role)

	manager := realtime.NewManager(fmt.Sprintf("ws://%s/ws", *host))
	session := chatsync.NewSession(manager, client)

	offConnect := manager.On(realtime.EventConnect, func(realtime.Event) {
		fmt.Println("* push channel connected")
	})
	defer offConnect()
	offDisconnect := manager.On(realtime.EventDisconnect, func(realtime.Event) {
		fmt.Println("* push channel disconnected")
	})
	defer offDisconnect()

	if err := session.Login(ctx, profileID, role, token); err != nil {
		log.Fatalf("session login failed: %v", err)
	}
	defer session.Logout()

	printConversations(session, role)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("commands: list | open <n> | send <text> | archive | quit")
	for {
		select {
		case <-interrupt:
			fmt.Println("\nbye")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := handleCommand(ctx, session, role, line); done {
				return
			}
		}
	}
}

func handleCommand(ctx context.Context, session *chatsync.Session, role models.Role, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "":
	case "quit", "exit":
		return true
	case "list":
		printConversations(session, role)
	case "open":
		convs := session.Store().List()
		idx := parseIndex(arg, len(convs))
		if idx < 0 {
			fmt.Println("usage: open <n>")
			return false
		}
		if err := session.Open(ctx, convs[idx].ID); err != nil {
			fmt.Printf("open failed: %v\n", err)
			return false
		}
		printMessages(session)
	case "send":
		selected, ok := session.Store().Selected()
		if !ok {
			fmt.Println("open a conversation first")
			return false
		}
		msg, err := session.Send(ctx, selected.ID, arg, "")
		if err != nil {
			fmt.Printf("send failed: %v\n", err)
			return false
		}
		fmt.Printf("sent %s (%s)\n", msg.ID, msg.Delivery)
	case "archive":
		selected, ok := session.Store().Selected()
		if !ok {
			fmt.Println("open a conversation first")
			return false
		}
		if err := session.Archive(ctx, selected.ID); err != nil {
			fmt.Printf("archive failed: %v\n", err)
			return false
		}
		fmt.Println("archived")
	default:
		fmt.Println("commands: list | open <n> | send <text> | archive | quit")
	}
	return false
}

func parseIndex(arg string, n int) int {
	var idx int
	if _, err := fmt.Sscanf(arg, "%d", &idx); err != nil {
		return -1
	}
	if idx < 1 || idx > n {
		return -1
	}
	return idx - 1
}

func printConversations(session *chatsync.Session, role models.Role) {
	convs := session.Store().List()
	fmt.Printf("%d conversations, %d unread\n", len(convs), session.Unread().Count())
	for i, conv := range convs {
		last := "(no messages)"
		if msg := conv.LastMessage(); msg != nil {
			last = fmt.Sprintf("%s: %.40s", msg.Sender, msg.Content)
		}
		name := "unknown"
		if conv.Partner != nil {
			name = conv.Partner.Name
		}
		fmt.Printf("%2d. [%s] %s  %s  (%d unread)\n", i+1, conv.Status, name, last, conv.UnreadFor(role))
	}
}

func printMessages(session *chatsync.Session) {
	selected, ok := session.Store().Selected()
	if !ok {
		return
	}
	if selected.Partner != nil {
		fmt.Printf("-- %s (%s)\n", selected.Partner.Name, selected.Partner.Title)
	}
	for _, msg := range selected.Messages {
		fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Format("15:04"), msg.Sender, msg.Content)
	}
}
