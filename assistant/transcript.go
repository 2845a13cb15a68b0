package assistant

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const maxTranscriptEntries = 10

type transcriptEntry struct {
	Stage  Stage
	Detail string
	At     time.Time
}

// Transcript records what each stage of one interaction produced. Only the
// most recent maxTranscriptEntries entries are kept.
type Transcript struct {
	mu      sync.Mutex
	entries []transcriptEntry
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Add(stage Stage, format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, transcriptEntry{
		Stage:  stage,
		Detail: truncate(fmt.Sprintf(format, args...), 500),
		At:     time.Now(),
	})
	if len(t.entries) > maxTranscriptEntries {
		t.entries = t.entries[len(t.entries)-maxTranscriptEntries:]
	}
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stages returns the recorded stages, oldest first.
func (t *Transcript) Stages() []Stage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Stage, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Stage
	}
	return out
}

func (t *Transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	for _, e := range t.entries {
		fmt.Fprintf(&sb, "%s %s: %s\n", e.At.Format("15:04:05.000"), e.Stage, e.Detail)
	}
	return sb.String()
}
