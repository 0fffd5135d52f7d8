// File: internal/refs/manager.go
package refs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// DefaultHistory is how many snapshots the manager retains for diagnostics.
const DefaultHistory = 5

// identityTextPrefixLen bounds how much element text feeds the identity
// hash. Text beyond the prefix is volatile (counters, timestamps) and would
// make the fingerprint useless.
const identityTextPrefixLen = 32

// StaleRefError rejects a ref whose version is not current.
type StaleRefError struct {
	RequestedVersion uint32
	CurrentVersion   uint32
}

func (e *StaleRefError) Error() string {
	return fmt.Sprintf("stale ref: version %d is no longer current (current is %d)", e.RequestedVersion, e.CurrentVersion)
}

// Manager owns snapshot versioning for one session. The version counter is
// monotonic; the only valid refs are those minted by the current snapshot.
// Not safe for concurrent use: a session drives it sequentially.
type Manager struct {
	logger    *zap.Logger
	version   uint32
	history   int
	snapshots map[uint32]*schemas.Snapshot
}

// NewManager builds a manager retaining up to history snapshots; history < 1
// falls back to DefaultHistory.
func NewManager(history int, logger *zap.Logger) *Manager {
	if history < 1 {
		history = DefaultHistory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:    logger.Named("refs"),
		history:   history,
		snapshots: make(map[uint32]*schemas.Snapshot),
	}
}

// CurrentVersion returns the latest snapshot version; zero before the first
// snapshot.
func (m *Manager) CurrentVersion() uint32 { return m.version }

// CurrentSnapshot returns the latest snapshot or nil.
func (m *Manager) CurrentSnapshot() *schemas.Snapshot {
	return m.snapshots[m.version]
}

// CreateSnapshot increments the version counter, assigns 1-indexed refs,
// fingerprints every element, and stores the snapshot. The oldest snapshot
// is evicted once the history bound is exceeded.
func (m *Manager) CreateSnapshot(url string, elements []schemas.Element) *schemas.Snapshot {
	m.version++
	snap := &schemas.Snapshot{
		Version:   m.version,
		Timestamp: time.Now().UTC(),
		URL:       url,
		Elements:  make(map[uint32]schemas.Element, len(elements)),
	}
	for i, el := range elements {
		el.IdentityHash = IdentityHash(el)
		snap.Elements[uint32(i+1)] = el
	}
	m.snapshots[m.version] = snap

	for len(m.snapshots) > m.history {
		lowest := m.version
		for v := range m.snapshots {
			if v < lowest {
				lowest = v
			}
		}
		delete(m.snapshots, lowest)
	}

	m.logger.Debug("snapshot created",
		zap.Uint32("version", m.version),
		zap.String("url", url),
		zap.Int("elements", len(elements)))
	return snap
}

// ParseRef splits a "V:R" versioned ref.
func ParseRef(ref string) (version, elementRef uint32, err error) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed ref %q: want \"version:ref\"", ref)
	}
	v, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed ref %q: bad version: %w", ref, err)
	}
	r, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed ref %q: bad element ref: %w", ref, err)
	}
	return uint32(v), uint32(r), nil
}

// ValidateRef resolves a versioned ref against the current snapshot. Any ref
// minted by an earlier snapshot is stale and rejected; the page has moved on
// and the element may no longer be what it was.
func (m *Manager) ValidateRef(ref string) (*schemas.Element, error) {
	v, r, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	if v != m.version {
		return nil, &StaleRefError{RequestedVersion: v, CurrentVersion: m.version}
	}
	snap := m.snapshots[m.version]
	if snap == nil {
		return nil, fmt.Errorf("no snapshot exists yet")
	}
	el, ok := snap.Elements[r]
	if !ok {
		return nil, fmt.Errorf("ref %q does not resolve in snapshot %d", ref, m.version)
	}
	return &el, nil
}

// HasElementChanged compares the identity hash behind oldRef with the
// element at the same ref position in the current snapshot. A missing
// element counts as changed.
func (m *Manager) HasElementChanged(oldRef string) (bool, error) {
	v, r, err := ParseRef(oldRef)
	if err != nil {
		return false, err
	}
	old, ok := m.snapshots[v]
	if !ok {
		return false, fmt.Errorf("snapshot %d is no longer retained", v)
	}
	oldEl, ok := old.Elements[r]
	if !ok {
		return false, fmt.Errorf("ref %q does not resolve in snapshot %d", oldRef, v)
	}
	cur := m.CurrentSnapshot()
	if cur == nil {
		return true, nil
	}
	curEl, ok := cur.Elements[r]
	if !ok {
		return true, nil
	}
	return oldEl.IdentityHash != curEl.IdentityHash, nil
}

// FormatForLLM renders a snapshot as a compact element listing for a model:
// one "ref=V:R role \"label\" text=\"...\" [attrs]" line per element,
// truncated with a trailing note past maxElements. A nil snapshot formats
// the current one.
func (m *Manager) FormatForLLM(snap *schemas.Snapshot, maxElements int) string {
	if snap == nil {
		snap = m.CurrentSnapshot()
	}
	if snap == nil {
		return "(no snapshot)"
	}
	if maxElements < 1 {
		maxElements = len(snap.Elements)
	}

	keys := make([]uint32, 0, len(snap.Elements))
	for r := range snap.Elements {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "Page: %s (snapshot %d)\n", snap.URL, snap.Version)
	shown := 0
	for _, r := range keys {
		if shown >= maxElements {
			fmt.Fprintf(&b, "... %d more elements omitted\n", len(keys)-shown)
			break
		}
		el := snap.Elements[r]
		fmt.Fprintf(&b, "ref=%d:%d %s", snap.Version, r, displayRole(el))
		if el.Label != "" {
			fmt.Fprintf(&b, " %q", el.Label)
		}
		if el.Text != "" {
			fmt.Fprintf(&b, " text=%q", truncate(el.Text, 60))
		}
		if len(el.Attributes) > 0 {
			fmt.Fprintf(&b, " [%s]", formatAttrs(el.Attributes))
		}
		b.WriteString("\n")
		shown++
	}
	return b.String()
}

// IdentityHash fingerprints the stable properties of an element: tag, role,
// aria-label, name, id, and a bounded text prefix. Two elements with the
// same stable properties hash identically across snapshots, which is what
// makes change detection a byte comparison.
func IdentityHash(el schemas.Element) string {
	parts := []string{
		el.Tag,
		el.Role,
		el.Attributes["aria-label"],
		el.Attributes["name"],
		el.Attributes["id"],
		truncate(el.Text, identityTextPrefixLen),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}

func displayRole(el schemas.Element) string {
	if el.Role != "" {
		return el.Role
	}
	return el.Tag
}

func formatAttrs(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
