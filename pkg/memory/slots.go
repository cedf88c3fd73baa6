package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hollisdev/ember/pkg/logger"
)

// Canonical long-term memory slots. Each is one markdown file kept read-only
// on disk between writes so a stray shell command cannot clobber it.
const (
	SlotUser     = "USER.md"
	SlotIdentity = "IDENTITY.md"
	SlotSoul     = "SOUL.md"
	SlotMind     = "MIND.md"
)

var slotNames = []string{SlotUser, SlotIdentity, SlotSoul, SlotMind}

const (
	protectedMode = os.FileMode(0o444)
	writableMode  = os.FileMode(0o644)
)

// ProtectedStore owns the memory slot files. Files rest at mode 0444; Write
// lifts the protection, writes, and restores it even when the write fails.
type ProtectedStore struct {
	dir string
	mu  sync.Mutex
}

func NewProtectedStore(workspace string) (*ProtectedStore, error) {
	dir := filepath.Join(workspace, "memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}

	s := &ProtectedStore{dir: dir}
	for _, name := range slotNames {
		path := s.path(name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(defaultSlotContent(name)), writableMode); err != nil {
				return nil, fmt.Errorf("seed memory slot %s: %w", name, err)
			}
		}
		if err := os.Chmod(path, protectedMode); err != nil {
			return nil, fmt.Errorf("protect memory slot %s: %w", name, err)
		}
	}
	return s, nil
}

func (s *ProtectedStore) path(slot string) string {
	return filepath.Join(s.dir, slot)
}

// IsSlot reports whether name is a known memory slot.
func IsSlot(name string) bool {
	for _, slot := range slotNames {
		if slot == name {
			return true
		}
	}
	return false
}

// Slots returns the slot names in a stable order.
func Slots() []string {
	out := append([]string(nil), slotNames...)
	sort.Strings(out)
	return out
}

// Read returns one slot's content.
func (s *ProtectedStore) Read(slot string) (string, error) {
	if !IsSlot(slot) {
		return "", fmt.Errorf("unknown memory slot %q", slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(slot))
	if err != nil {
		return "", fmt.Errorf("read memory slot %s: %w", slot, err)
	}
	return string(data), nil
}

// ReadAll returns every slot keyed by name.
func (s *ProtectedStore) ReadAll() (map[string]string, error) {
	out := make(map[string]string, len(slotNames))
	for _, slot := range slotNames {
		content, err := s.Read(slot)
		if err != nil {
			return nil, err
		}
		out[slot] = content
	}
	return out, nil
}

// Write replaces a slot's content. The read-only bit is restored no matter
// how the write goes.
func (s *ProtectedStore) Write(slot, content string) error {
	if !IsSlot(slot) {
		return fmt.Errorf("unknown memory slot %q", slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(slot)
	if err := os.Chmod(path, writableMode); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unprotect memory slot %s: %w", slot, err)
	}
	defer func() {
		if err := os.Chmod(path, protectedMode); err != nil {
			logger.ErrorCF("memory", "failed to re-protect slot", map[string]interface{}{
				"slot": slot, "error": err.Error(),
			})
		}
	}()

	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), writableMode); err != nil {
		return fmt.Errorf("write memory slot %s: %w", slot, err)
	}
	return nil
}

func defaultSlotContent(slot string) string {
	switch slot {
	case SlotUser:
		return "# User\n\nNothing known about the user yet.\n"
	case SlotIdentity:
		return "# Identity\n\nI am ember, a personal automation agent.\n"
	case SlotSoul:
		return "# Soul\n\nBe helpful, honest, and brief. Prefer doing over explaining.\n"
	case SlotMind:
		return "# Mind\n\nNo running notes yet.\n"
	default:
		return ""
	}
}
