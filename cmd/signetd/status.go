package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type statusResponse struct {
	PID     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

func newStatusCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running daemon's status",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStatus(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:"+defaultPort, "daemon base URL")

	return cmd
}

func runStatus(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(addr + "/api/status")
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stdout, "signetd is not reachable at %s: %v\n", addr, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(body))
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode status response: %w", err)
	}

	printStatus(status)

	return nil
}

func printStatus(status statusResponse) {
	color.New(color.FgGreen).Fprintf(os.Stdout, "signetd is running\n")

	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)

	tbl.AppendHeader(table.Row{"Field", "Value"})
	tbl.AppendRow(table.Row{"PID", status.PID})
	tbl.AppendRow(table.Row{"Uptime", status.Uptime})
	tbl.AppendRow(table.Row{"Version", status.Version})
	tbl.AppendFooter(table.Row{"Checked", humanize.Time(time.Now())})

	tbl.Render()
}
