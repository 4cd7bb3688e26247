package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/searchktools/staticd/internal/master"
)

func secondsDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// runAdminConsole runs a small peterh/liner REPL on the controlling
// terminal offering "stats", "workers", and "quit". It is a convenience
// wrapper over the same data /api/stats serves and the graceful-shutdown
// path cancel triggers; disabled under -daemon or when stdin is not a
// TTY (see main.go).
func runAdminConsole(cancel func(), m *master.Master) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("staticd admin console — commands: stats, workers, quit")
	for {
		cmd, err := line.Prompt("staticd> ")
		if err != nil {
			cancel()
			return
		}
		line.AppendHistory(cmd)

		switch strings.TrimSpace(cmd) {
		case "stats":
			printStats(m.Port())
		case "workers":
			printWorkers(m)
		case "quit", "exit":
			cancel()
			return
		case "":
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

// printStats fetches the same JSON body /api/stats serves over the
// listening port and pretty-prints it, so the REPL never keeps its own
// copy of the counters to drift out of sync with the real endpoint.
func printStats(port int) {
	url := fmt.Sprintf("http://127.0.0.1:%d/api/stats", port)
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf("stats: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Printf("stats: decoding response: %v\n", err)
		return
	}
	pretty, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fmt.Printf("stats: %v\n", err)
		return
	}
	fmt.Println(string(pretty))
}

func printWorkers(m *master.Master) {
	pids := m.WorkerPIDs()
	if len(pids) == 0 {
		fmt.Println("no workers tracked")
		return
	}
	for i, pid := range pids {
		fmt.Printf("worker %d: pid=%d\n", i, pid)
	}
}
