// Package cleanup implements pruning of stale cached sessions and old
// log events.
package cleanup

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	applog "github.com/agime-dev/agimectl/internal/log"
	"github.com/agime-dev/agimectl/internal/store"
)

// PruneSessions removes cached sessions whose last fetch is older than
// maxAgeDays, along with their transcripts. If dryRun is true, nothing
// is deleted; the function only returns the ids that would be removed.
// Sessions still marked as processing are kept regardless of age.
func PruneSessions(st *store.Store, maxAgeDays int, dryRun bool) ([]string, error) {
	sessions, err := st.ListSessions(10000)
	if err != nil {
		return nil, fmt.Errorf("listing cached sessions: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	var pruned []string

	for _, cs := range sessions {
		if cs.IsProcessing {
			continue
		}
		if !cs.FetchedAt.Before(cutoff) {
			continue
		}
		if !dryRun {
			if err := st.DeleteSession(cs.SessionID); err != nil {
				return pruned, fmt.Errorf("removing %s: %w", cs.SessionID, err)
			}
		}
		pruned = append(pruned, cs.SessionID)
	}

	return pruned, nil
}

// TrimLog rewrites the JSONL log at path, dropping events older than
// maxAgeDays. Returns the number of dropped events. A missing log file
// is not an error. If dryRun is true the file is left untouched.
func TrimLog(path string, maxAgeDays int, dryRun bool) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	var kept [][]byte
	dropped := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event applog.LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			// Keep lines we can't parse rather than silently losing them.
			kept = append(kept, append([]byte(nil), line...))
			continue
		}
		if event.Time.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("reading log: %w", err)
	}

	if dryRun || dropped == 0 {
		return dropped, nil
	}

	tmp := path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("creating trimmed log: %w", err)
	}
	w := bufio.NewWriter(out)
	for _, line := range kept {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		out.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("writing trimmed log: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("closing trimmed log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("replacing log: %w", err)
	}

	return dropped, nil
}
