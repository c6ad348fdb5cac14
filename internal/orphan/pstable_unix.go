//go:build !windows

package orphan

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// listProcesses enumerates the OS process table via ps.
func listProcesses() ([]ProcessRow, error) {
	cmd := exec.Command("ps", "-eo", "pid,ppid,args")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("running ps: %w", err)
	}
	return parseProcessTable(out), nil
}

// parseProcessTable parses `ps -eo pid,ppid,args` output. Rows that
// don't parse are skipped.
func parseProcessTable(out []byte) []ProcessRow {
	var rows []ProcessRow
	scanner := bufio.NewScanner(bytes.NewReader(out))

	// Skip header line
	if scanner.Scan() {
	}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		rows = append(rows, ProcessRow{
			PID:  pid,
			PPID: ppid,
			Args: strings.Join(fields[2:], " "),
		})
	}
	return rows
}
