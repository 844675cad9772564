// Package format renders catalogue output for agent consumption: raw
// docker JSON is reshaped into compact markdown tables, and taxonomy
// errors into attributable failure reports.
package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fleetdock/fleetdock/internal/compose"
	"github.com/fleetdock/fleetdock/internal/pool"
	"github.com/fleetdock/fleetdock/internal/remote"
)

// containerRow mirrors the fields of `docker ps --format json` we render.
type containerRow struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	Image  string `json:"Image"`
	State  string `json:"State"`
	Status string `json:"Status"`
	Ports  string `json:"Ports"`
}

// imageRow mirrors the fields of `docker image ls --format json` we render.
type imageRow struct {
	ID         string `json:"ID"`
	Repository string `json:"Repository"`
	Tag        string `json:"Tag"`
	Size       string `json:"Size"`
	CreatedAt  string `json:"CreatedAt"`
}

// Containers renders `docker ps --format json` output as a markdown table.
func Containers(out string) (string, error) {
	var rows [][]string
	for _, line := range jsonLines(out) {
		var c containerRow
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return "", fmt.Errorf("parse container line: %w", err)
		}
		rows = append(rows, []string{shortID(c.ID), c.Names, c.Image, c.State, c.Status, c.Ports})
	}
	return markdownTable([]string{"ID", "Name", "Image", "State", "Status", "Ports"}, rows), nil
}

// Images renders `docker image ls --format json` output as a markdown table.
func Images(out string) (string, error) {
	var rows [][]string
	for _, line := range jsonLines(out) {
		var im imageRow
		if err := json.Unmarshal([]byte(line), &im); err != nil {
			return "", fmt.Errorf("parse image line: %w", err)
		}
		rows = append(rows, []string{shortID(im.ID), im.Repository, im.Tag, im.Size})
	}
	return markdownTable([]string{"ID", "Repository", "Tag", "Size"}, rows), nil
}

// Projects renders discovered compose projects as a markdown table.
func Projects(projects []compose.Project) string {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{p.Name, p.Status, p.Dir()})
	}
	return markdownTable([]string{"Project", "Status", "Directory"}, rows)
}

// Stats renders a pool statistics snapshot as a markdown list.
func Stats(st pool.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- connections: %d total, %d idle, %d active\n", st.TotalConnections, st.IdleConnections, st.ActiveConnections)
	fmt.Fprintf(&b, "- acquires: %d hits, %d misses\n", st.PoolHits, st.PoolMisses)
	return b.String()
}

// Error renders a taxonomy error with full attribution: host identity
// always, command line and exit code for command failures.
func Error(err error) string {
	var cmdErr *remote.CommandError
	if errors.As(err, &cmdErr) {
		var b strings.Builder
		fmt.Fprintf(&b, "command failed on %s (exit %d)\n", cmdErr.Host, cmdErr.ExitCode)
		fmt.Fprintf(&b, "command: %s\n", cmdErr.CommandLine)
		if cmdErr.Stderr != "" {
			fmt.Fprintf(&b, "stderr:\n%s\n", cmdErr.Stderr)
		}
		if cmdErr.Stdout != "" {
			fmt.Fprintf(&b, "stdout:\n%s\n", strings.TrimSpace(cmdErr.Stdout))
		}
		return b.String()
	}

	var toErr *remote.TimeoutError
	if errors.As(err, &toErr) {
		return fmt.Sprintf("command timed out on %s after %s\ncommand: %s\n", toErr.Host, toErr.Timeout, toErr.CommandLine)
	}

	return err.Error()
}

// jsonLines splits docker's line-delimited JSON output, skipping blanks.
func jsonLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// markdownTable renders a pipe table. Empty cells render as "-" so rows
// keep their shape in narrow renderers.
func markdownTable(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return "_none_\n"
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(headers)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(headers))
		for i := range headers {
			cell := "-"
			if i < len(row) && row[i] != "" {
				cell = strings.ReplaceAll(row[i], "|", "\\|")
			}
			cells[i] = cell
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}
