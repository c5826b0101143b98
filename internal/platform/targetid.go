package platform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseTargetPID extracts the pid from a "pid:<N>" target identifier.
// Any other form — including a bare number — does not parse.
func ParseTargetPID(targetID string) (int, bool) {
	raw, ok := strings.CutPrefix(targetID, "pid:")
	if !ok {
		return 0, false
	}
	pid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return pid, true
}

// ParseWindowSourceID extracts the HWND value from a "window:<hwnd>:<idx>"
// source identifier. Any other leading tag (e.g. "screen:") does not parse.
func ParseWindowSourceID(sourceID string) (int64, bool) {
	parts := strings.Split(sourceID, ":")
	if len(parts) < 2 || parts[0] != "window" {
		return 0, false
	}
	hwnd, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return hwnd, true
}

// WindowEntry is one raw (pid, title) pair observed during window
// enumeration, before deduplication.
type WindowEntry struct {
	PID   int
	Title string
}

// DedupeWindowEntriesByPID collapses entries sharing a PID, keeping the
// first-seen title.
func DedupeWindowEntriesByPID(entries []WindowEntry) map[int]string {
	deduped := make(map[int]string)
	for _, e := range entries {
		if _, exists := deduped[e.PID]; !exists {
			deduped[e.PID] = e.Title
		}
	}
	return deduped
}

// TargetID formats the canonical "pid:<N>" identifier for a loopback target.
func TargetID(pid int) string {
	return fmt.Sprintf("pid:%d", pid)
}

// BuildTargets converts deduplicated (pid, title) pairs plus a process-name
// resolver into a Target list labeled "<title> - <process> (<pid>)" and
// sorted by label.
func BuildTargets(entries []WindowEntry, processNameForPID func(pid int) string) []Target {
	deduped := DedupeWindowEntriesByPID(entries)

	targets := make([]Target, 0, len(deduped))
	for pid, title := range deduped {
		processName := processNameForPID(pid)
		if processName == "" {
			processName = "unknown.exe"
		}
		targets = append(targets, Target{
			PID:         pid,
			Label:       fmt.Sprintf("%s - %s (%d)", strings.TrimSpace(title), processName, pid),
			ProcessName: processName,
		})
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Label < targets[j].Label })
	return targets
}
