package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"chat-sync/internal/apiclient"
	"chat-sync/internal/config"
	"chat-sync/internal/engine"
	"chat-sync/internal/models"
	"chat-sync/internal/session"
	"chat-sync/internal/transcript"
	"chat-sync/internal/transport"
)

func main() {
	config.LoadEnvFile(".env")
	cfg := config.LoadClient()

	apiAddr := flag.String("api", cfg.APIBaseURL, "persistence api base url")
	streamAddr := flag.String("stream", cfg.StreamURL, "streaming endpoint url")
	token := flag.String("token", cfg.Token, "bearer token")
	username := flag.String("username", cfg.Username, "display name")
	dmUser := flag.Int64("dm", 0, "user id to chat with")
	groupID := flag.String("group", "", "group id to chat in (overrides -dm)")
	flag.Parse()

	sess, err := session.FromToken(*token, *username)
	if err != nil {
		log.Fatal("invalid token:", err)
	}

	api := apiclient.New(*apiAddr, sess, &http.Client{Timeout: cfg.HTTPTimeout})
	eng := engine.New(sess, api, transport.NewDialer(sess, nil), *streamAddr)
	defer func() {
		eng.Wait()
		_ = eng.Close()
	}()

	conv, ok := conversationFromFlags(*dmUser, *groupID)
	if !ok {
		log.Fatal("one of -dm or -group is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	open(ctx, eng, conv)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Print("> ")
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-lines:
			if !ok || text == "/quit" {
				return
			}
			handleLine(ctx, eng, text)
			fmt.Print("> ")
		}
	}
}

func handleLine(ctx context.Context, eng *engine.Engine, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	// /open user <id> | /open group <id>
	if strings.HasPrefix(text, "/open ") {
		fields := strings.Fields(text)
		if len(fields) != 3 {
			fmt.Println("usage: /open user <id> | /open group <id>")
			return
		}
		var conv models.Conversation
		switch fields[1] {
		case "user":
			id, err := strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				fmt.Println("invalid user id")
				return
			}
			conv = models.Direct(id, "")
		case "group":
			conv = models.Group(fields[2], "")
		default:
			fmt.Println("usage: /open user <id> | /open group <id>")
			return
		}
		open(ctx, eng, conv)
		return
	}

	// /post <id> [caption]
	if strings.HasPrefix(text, "/post ") {
		fields := strings.SplitN(strings.TrimPrefix(text, "/post "), " ", 2)
		postID, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || postID <= 0 {
			fmt.Println("usage: /post <id> [caption]")
			return
		}
		caption := ""
		if len(fields) == 2 {
			caption = fields[1]
		}
		if _, err := eng.SendPost(ctx, caption, postID); err != nil {
			log.Println("send:", err)
		}
		return
	}

	if _, err := eng.Send(ctx, text); err != nil {
		log.Println("send:", err)
	}
}

func open(ctx context.Context, eng *engine.Engine, conv models.Conversation) {
	if err := eng.Open(ctx, conv); err != nil {
		log.Printf("open %s %s: %v", conv.Kind, conv.ID, err)
	}
	if !eng.TransportReady() {
		log.Printf("live updates unavailable for %s %s", conv.Kind, conv.ID)
	}

	updates, err := eng.Updates(ctx)
	if err != nil {
		log.Println("updates:", err)
		return
	}
	go render(updates)
}

func render(updates <-chan transcript.Update) {
	for u := range updates {
		switch u.Kind {
		case transcript.KindCurrent, transcript.KindSnapshot:
			for _, m := range u.Transcript {
				printMessage(m)
			}
		case transcript.KindLive:
			printMessage(*u.Message)
		case transcript.KindResolved:
			if u.Message.State == models.StateFailed {
				fmt.Printf("\r(failed to send: %s)\n> ", u.Message.Text)
			}
		}
	}
}

func printMessage(m models.Message) {
	sender := m.SenderName
	if sender == "" {
		sender = strconv.FormatInt(m.SenderID, 10)
	}
	body := m.Text
	if m.PostID != 0 {
		body = strings.TrimSpace(fmt.Sprintf("[post %d] %s", m.PostID, m.Text))
	}
	fmt.Printf("\r%s %s: %s (%s)\n> ", m.CreatedAt.Format("15:04"), sender, body, m.State)
}

func conversationFromFlags(dmUser int64, groupID string) (models.Conversation, bool) {
	if groupID != "" {
		return models.Group(groupID, ""), true
	}
	if dmUser != 0 {
		return models.Direct(dmUser, ""), true
	}
	return models.Conversation{}, false
}
