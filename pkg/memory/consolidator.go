package memory

import (
	"context"
	"fmt"

	"github.com/hollisdev/ember/pkg/brain"
	"github.com/hollisdev/ember/pkg/logger"
)

// Summarizer is the slice of the brain the consolidator needs.
type Summarizer interface {
	Summarize(ctx context.Context, history []brain.Message, existing string) (string, error)
	ExtractFacts(ctx context.Context, history []brain.Message, slots map[string]string) (map[string]string, error)
}

// Consolidator folds finished conversation into long-term memory: raw turns
// into the archive, a rolling summary, and fact updates merged into the
// protected slots.
type Consolidator struct {
	brain   Summarizer
	store   *ProtectedStore
	archive *EventArchive
}

func NewConsolidator(b Summarizer, store *ProtectedStore, archive *EventArchive) *Consolidator {
	return &Consolidator{brain: b, store: store, archive: archive}
}

// Consolidate archives the given history slice, folds it into the rolling
// summary, and applies extracted fact updates to the memory slots. It returns
// the new summary. The archive write happens first so a summarization failure
// never loses raw history.
func (c *Consolidator) Consolidate(ctx context.Context, sessionKey string, history []brain.Message, existingSummary string) (string, error) {
	if len(history) == 0 {
		return existingSummary, nil
	}

	if c.archive != nil {
		if err := c.archive.Append(ctx, sessionKey, history); err != nil {
			return existingSummary, fmt.Errorf("archive history: %w", err)
		}
	}

	summary, err := c.brain.Summarize(ctx, history, existingSummary)
	if err != nil {
		return existingSummary, err
	}

	slots, err := c.store.ReadAll()
	if err != nil {
		return summary, err
	}
	updates, err := c.brain.ExtractFacts(ctx, history, slots)
	if err != nil {
		// The summary already succeeded; a failed extraction just means the
		// slots stay as they were.
		logger.WarnCF("memory", "fact extraction failed", map[string]interface{}{"error": err.Error()})
		return summary, nil
	}

	for slot, content := range updates {
		if content == slots[slot] {
			continue
		}
		if err := c.store.Write(slot, content); err != nil {
			return summary, err
		}
		logger.InfoCF("memory", "memory slot updated", map[string]interface{}{"slot": slot})
	}
	return summary, nil
}
