package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chatline-app/chat-service/config"
	"github.com/chatline-app/chat-service/internal/client"
	"github.com/chatline-app/chat-service/pkg/logger"
)

// Терминальный клиент: REPL поверх движка. Команды:
//
//	/rooms               список комнат
//	/open <n>            открыть комнату по номеру
//	/older               догрузить страницу истории
//	/edit <id> <text>    поправить своё сообщение
//	/del <id>            удалить с undo-окном
//	/undo <id>           отменить удаление
//	/react <id> <emoji>  поставить/снять реакцию
//	/quit                выход
//
// Любая другая строка отправляется сообщением в открытую комнату.
func main() {
	server := flag.String("server", "http://localhost:8081", "chat-service base URL")
	username := flag.String("user", "", "username")
	password := flag.String("pass", "", "password")
	email := flag.String("email", "", "email (register)")
	register := flag.Bool("register", false, "register a new account")
	flag.Parse()

	logger.Init(logger.Config{Service: "chat-client"})

	if *username == "" || *password == "" {
		log.Fatal("-user and -pass are required")
	}

	opts := client.Options{
		BaseURL: strings.TrimRight(*server, "/"),
		WSURL:   toWS(*server) + "/ws",
	}
	// тюнинг из config.yaml, если он есть рядом
	if cfg, err := config.LoadConfig(); err == nil {
		opts.ReconnectAttempts = cfg.Client.ReconnectAttempts
		opts.ReconnectDelay = cfg.Client.ReconnectDelayD()
		opts.TypingThrottle = cfg.Client.TypingThrottleD()
		opts.TypingDebounce = cfg.Client.TypingDebounceD()
		opts.UndoWindow = cfg.Client.UndoWindowD()
		opts.PageSize = cfg.Client.PageSize
	}

	eng := client.NewEngine(opts)
	defer eng.Close()

	eng.OnError = func(err error) {
		fmt.Fprintf(os.Stderr, "! %v\n", err)
	}

	ctx := context.Background()
	var err error
	if *register {
		err = eng.Register(ctx, *username, *email, *password)
	} else {
		err = eng.Login(ctx, *username, *password)
	}
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	fmt.Printf("signed in as %s (%s)\n", eng.Self().Username, eng.ConnState())
	printRooms(eng)

	repl(ctx, eng)
}

func repl(ctx context.Context, eng *client.Engine) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/rooms":
			printRooms(eng)
		case line == "/older":
			roomID := eng.Rooms().Selected()
			if roomID == "" {
				fmt.Println("no room open")
				continue
			}
			loaded, err := eng.LoadOlder(ctx, roomID, noopViewport{})
			if err != nil {
				fmt.Fprintf(os.Stderr, "! %v\n", err)
			} else if !loaded {
				fmt.Println("no more history")
			}
			printRoom(eng)
		case strings.HasPrefix(line, "/open "):
			openRoom(ctx, eng, strings.TrimSpace(line[6:]))
		case strings.HasPrefix(line, "/edit "):
			parts := strings.SplitN(line[6:], " ", 2)
			if len(parts) != 2 {
				fmt.Println("usage: /edit <id> <text>")
				continue
			}
			if err := eng.EditMessage(ctx, parts[0], parts[1]); err != nil {
				fmt.Fprintf(os.Stderr, "! %v\n", err)
			}
		case strings.HasPrefix(line, "/del "):
			roomID := eng.Rooms().Selected()
			deadline := eng.DeleteMessage(roomID, strings.TrimSpace(line[5:]))
			fmt.Printf("deleting at %s; /undo <id> to cancel\n", deadline.Format(time.Kitchen))
		case strings.HasPrefix(line, "/undo "):
			if eng.UndoDelete(strings.TrimSpace(line[6:])) {
				fmt.Println("delete cancelled")
			} else {
				fmt.Println("too late")
			}
		case strings.HasPrefix(line, "/react "):
			parts := strings.SplitN(line[7:], " ", 2)
			if len(parts) != 2 {
				fmt.Println("usage: /react <id> <emoji>")
				continue
			}
			roomID := eng.Rooms().Selected()
			if !eng.ToggleReaction(roomID, parts[0], strings.TrimSpace(parts[1])) {
				fmt.Println("message not found")
			}
		default:
			sendMessage(ctx, eng, line)
		}
	}
}

func openRoom(ctx context.Context, eng *client.Engine, arg string) {
	rooms := eng.Rooms().Rooms()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(rooms) {
		fmt.Println("usage: /open <n> (see /rooms)")
		return
	}
	if err := eng.OpenRoom(ctx, rooms[n-1].ID); err != nil {
		fmt.Fprintf(os.Stderr, "! %v\n", err)
		return
	}
	printRoom(eng)
}

func sendMessage(ctx context.Context, eng *client.Engine, text string) {
	roomID := eng.Rooms().Selected()
	if roomID == "" {
		fmt.Println("open a room first: /open <n>")
		return
	}
	eng.Keystroke(roomID)
	if _, err := eng.SendMessage(ctx, roomID, text, nil); err != nil {
		fmt.Fprintf(os.Stderr, "! send: %v\n", err)
		return
	}
	printRoom(eng)
}

func printRooms(eng *client.Engine) {
	rooms := eng.Rooms().Rooms()
	if len(rooms) == 0 {
		fmt.Println("no rooms yet")
		return
	}
	for i, r := range rooms {
		unread := ""
		if n := eng.Rooms().Unread(r.ID); n > 0 {
			unread = fmt.Sprintf(" (%d unread)", n)
		}
		last := ""
		if r.LastMessage != nil {
			last = " — " + r.LastMessage.Content
		}
		fmt.Printf("%2d. %s%s%s\n", i+1, r.Name, unread, last)
	}
}

func printRoom(eng *client.Engine) {
	roomID := eng.Rooms().Selected()
	for _, e := range eng.Store().Messages(roomID) {
		mark := ""
		switch e.State {
		case client.StatePending:
			mark = " [sending]"
		case client.StateFailed:
			mark = " [failed]"
		}
		body := e.Content
		if e.IsDeleted {
			body = "(deleted)"
		}
		fmt.Printf("%s %s: %s%s\n", e.CreatedAt.Format("15:04"), e.SenderName, body, mark)
	}
	if peers := eng.Typing().TypingUsers(roomID); len(peers) > 0 {
		names := make([]string, 0, len(peers))
		for _, n := range peers {
			names = append(names, n)
		}
		fmt.Printf("typing: %s\n", strings.Join(names, ", "))
	}
}

func toWS(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + base[len("https://"):]
	case strings.HasPrefix(base, "http://"):
		return "ws://" + base[len("http://"):]
	}
	return base
}

// Терминал не скроллит пиксельно, якорь не нужен.
type noopViewport struct{}

func (noopViewport) ContentHeight() int { return 0 }
func (noopViewport) ScrollTop() int     { return 0 }
func (noopViewport) SetScrollTop(int)   {}
