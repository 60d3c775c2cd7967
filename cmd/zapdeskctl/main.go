package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/zapdesk/console/internal/config"
	"github.com/zapdesk/console/internal/session"
)

func main() {
	addrFlag := flag.String("addr", "", "gateway address (default from config)")
	jsonFlag := flag.Bool("json", false, "output raw JSON")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	addr := *addrFlag
	if addr == "" {
		addr = config.Default().Gateway.Listen
		if cfg, err := config.Load(session.ConfigPath()); err == nil {
			addr = cfg.Gateway.Listen
		}
	}
	c := &client{base: "http://" + addr, http: &http.Client{Timeout: 10 * time.Second}}

	var err error
	switch args[0] {
	case "status":
		err = c.status(*jsonFlag)
	case "chats":
		err = c.chats(*jsonFlag)
	case "messages":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: zapdeskctl messages <kind> <id>")
			os.Exit(1)
		}
		err = c.messages(args[1], args[2], *jsonFlag)
	case "read":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: zapdeskctl read <kind> <id>")
			os.Exit(1)
		}
		err = c.post(fmt.Sprintf("/api/chats/%s/%s/read", args[1], args[2]), nil)
	case "send":
		if len(args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: zapdeskctl send <kind> <id> <text>")
			os.Exit(1)
		}
		body := strings.Join(args[3:], " ")
		err = c.post(fmt.Sprintf("/api/chats/%s/%s/messages", args[1], args[2]),
			map[string]string{"body": body})
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: zapdeskctl [flags] <command>

commands:
  status                    session and connection state
  chats                     list open conversations
  messages <kind> <id>      list a conversation's messages
  read <kind> <id>          mark a conversation as read
  send <kind> <id> <text>   send a text message

flags:
  -addr string              gateway address (default from config)
  -json                     output raw JSON`)
}

type client struct {
	base string
	http *http.Client
}

func (c *client) get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("cannot reach daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (c *client) post(path string, body any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := c.http.Post(c.base+path, "application/json", &buf)
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if len(data) > 0 {
		fmt.Println(strings.TrimSpace(string(data)))
	}
	return nil
}

func (c *client) status(raw bool) error {
	data, err := c.get("/api/session")
	if err != nil {
		return err
	}
	if raw {
		fmt.Println(string(data))
		return nil
	}
	var s struct {
		Status     string `json:"status"`
		UserID     int64  `json:"userId"`
		InstanceID string `json:"instanceId"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	fmt.Printf("status:    %s\n", s.Status)
	fmt.Printf("user:      %d\n", s.UserID)
	fmt.Printf("instance:  %s\n", s.InstanceID)
	return nil
}

func (c *client) chats(raw bool) error {
	data, err := c.get("/api/chats")
	if err != nil {
		return err
	}
	if raw {
		fmt.Println(string(data))
		return nil
	}
	var chats []struct {
		Kind        string `json:"kind"`
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Unread      bool   `json:"unread"`
		LastMessage *struct {
			Body      string `json:"body"`
			Timestamp int64  `json:"timestamp"`
		} `json:"lastMessage"`
	}
	if err := json.Unmarshal(data, &chats); err != nil {
		return err
	}
	for _, ch := range chats {
		marker := " "
		if ch.Unread {
			marker = "*"
		}
		last := ""
		if ch.LastMessage != nil {
			last = ch.LastMessage.Body
			if len(last) > 40 {
				last = last[:40] + "…"
			}
		}
		fmt.Printf("%s %s/%-6d %-24s %s\n", marker, ch.Kind, ch.ID, ch.Name, last)
	}
	return nil
}

func (c *client) messages(kind, id string, raw bool) error {
	data, err := c.get(fmt.Sprintf("/api/chats/%s/%s/messages", kind, id))
	if err != nil {
		return err
	}
	if raw {
		fmt.Println(string(data))
		return nil
	}
	var msgs []struct {
		ID        string `json:"id"`
		Sender    string `json:"sender"`
		Body      string `json:"body"`
		Status    string `json:"status"`
		Timestamp int64  `json:"timestamp"`
		Edited    bool   `json:"edited"`
	}
	if err := json.Unmarshal(data, &msgs); err != nil {
		return err
	}
	for _, m := range msgs {
		ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
		edited := ""
		if m.Edited {
			edited = " (editada)"
		}
		fmt.Printf("[%s] %-10s %-28s %s%s\n", ts, m.Status, m.Sender, m.Body, edited)
	}
	return nil
}
