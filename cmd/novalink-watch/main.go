// Command novalink-watch is a terminal dashboard client. It mirrors the
// server snapshot, renders it on every change, and prints spoken text.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/Strob0t/NovaLink/internal/client"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	token := flag.String("token", os.Getenv("NOVALINK_TOKEN"), "bearer session token")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	if *token == "" {
		fmt.Fprintln(os.Stderr, "a session token is required (-token or NOVALINK_TOKEN)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Options{
		ServerURL: *server,
		Token:     *token,
		Synth:     printSynth{},
		OnChange:  render,
	})

	err := c.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
	case errors.Is(err, client.ErrUnauthorized):
		fmt.Fprintln(os.Stderr, "session rejected by server")
		os.Exit(1)
	case err != nil:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// printSynth writes voice events to stdout instead of speaking them.
type printSynth struct{}

func (printSynth) Speak(text string, agentID *int64) {
	if agentID != nil {
		fmt.Printf("\n>> voice [agent %d]: %s\n", *agentID, text)
		return
	}
	fmt.Printf("\n>> voice: %s\n", text)
}

func render(snap client.Snapshot) {
	types := make(map[int64]string, len(snap.AgentTypes))
	for _, t := range snap.AgentTypes {
		types[t.ID] = t.Name
	}

	agents := snap.Agents
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })

	fmt.Printf("\n=== agents @ %s ===\n", snap.UpdatedAt.Format("15:04:05"))
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tCPU%\tMEM(MB)\tUPTIME(s)")
	for _, a := range agents {
		name := types[a.TypeID]
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\n",
			a.ID, a.Name, name, a.Status, a.CPU, a.Memory, a.Uptime)
	}
	tw.Flush()

	open := 0
	for _, al := range snap.Alerts {
		if !al.Resolved {
			open++
		}
	}
	if open > 0 {
		fmt.Printf("--- %d open alert(s) ---\n", open)
		for _, al := range snap.Alerts {
			if !al.Resolved {
				fmt.Printf("  [agent %d] %s\n", al.AgentID, al.Message)
			}
		}
	}
}
