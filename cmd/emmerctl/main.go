// Command emmerctl is an interactive operator console for a running emmerd
// instance: it polls the debug HTTP endpoint and prints the live
// conversation table. Modeled on minimega's local CLI loop.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/peterh/liner"
)

type conversationView struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	State    string `json:"state"`
	Filename string `json:"filename"`
}

func main() {
	debugAddr := flag.String("addr", "http://127.0.0.1:9942", "base URL of the emmerd debug HTTP endpoint")
	flag.Parse()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("emmerctl: type 'help' for commands")

	for {
		input, err := line.Prompt("emmerctl> ")
		if err == liner.ErrPromptAborted {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if !dispatch(*debugAddr, input) {
			return
		}
	}
}

// dispatch runs one command and reports whether the REPL should keep going.
func dispatch(debugAddr, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "quit", "exit":
		return false
	case "help":
		fmt.Println("commands: list, size, drop <host:port>, help, quit")
		return true
	case "list":
		printConversations(debugAddr)
		return true
	case "size":
		views, err := fetchConversations(debugAddr)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return true
		}
		fmt.Println(len(views))
		return true
	case "drop":
		if len(fields) != 2 {
			fmt.Println("usage: drop <host:port>")
			return true
		}
		dropConversation(debugAddr, fields[1])
		return true
	default:
		fmt.Printf("unknown command: %s\n", fields[0])
		return true
	}
}

func fetchConversations(debugAddr string) ([]conversationView, error) {
	resp, err := http.Get(debugAddr + "/debug/conversations")
	if err != nil {
		return nil, fmt.Errorf("emmerctl: %w", err)
	}
	defer resp.Body.Close()

	var views []conversationView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return nil, fmt.Errorf("emmerctl: decoding response: %w", err)
	}
	return views, nil
}

// dropConversation asks emmerd to drop the conversation for hostPort
// ("host:port") via its mutating debug endpoint.
func dropConversation(debugAddr, hostPort string) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "emmerctl: %v\n", err)
		return
	}

	u := fmt.Sprintf("%s/debug/drop?host=%s&port=%s", debugAddr, url.QueryEscape(host), url.QueryEscape(portStr))
	req, err := http.NewRequest(http.MethodPost, u, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "emmerctl: %v\n", err)
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "emmerctl: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "emmerctl: drop failed: %s: %s\n", resp.Status, strings.TrimSpace(string(body)))
		return
	}
	fmt.Printf("dropped %s\n", hostPort)
}

func printConversations(debugAddr string) {
	views, err := fetchConversations(debugAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if len(views) == 0 {
		fmt.Println("no active conversations")
		return
	}
	for _, v := range views {
		fmt.Printf("%-20s %-8d %-12s %s\n", v.Host, v.Port, v.State, v.Filename)
	}
}
