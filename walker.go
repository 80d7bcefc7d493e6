package ept

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// EntryDump records one level of a diagnostic walk: where the entry lives
// and what it says.
type EntryDump struct {
	Level     Level
	TableAddr uint64
	Index     int
	Entry     Entry
}

func (d EntryDump) String() string {
	return fmt.Sprintf("%-5s table=0x%x[%03d] %s", d.Level, d.TableAddr, d.Index, d.Entry)
}

// DumpEntries renders the live entry chain for gpa, from the root to the
// terminal entry or the first absent one. Read-only; nothing in the
// hierarchy or hardware state is touched.
//
// When split is not NoTable, the walk substitutes that table at the PT
// level instead of following the PDE link. Misconfiguration diagnostics
// pass the responsible hook's private fragment here so the dump reflects
// the per-hook split even if the live link is the corrupt part.
func (h *Hierarchy) DumpEntries(gpa uint64, split TableID) ([]EntryDump, error) {
	recordDump()

	var chain []EntryDump
	id := h.root
	for _, level := range []Level{LevelPML4, LevelPDPT, LevelPD, LevelPT} {
		table, err := h.arena.Table(id)
		if err != nil {
			return chain, err
		}
		addr, err := h.arena.Addr(id)
		if err != nil {
			return chain, err
		}

		idx := levelIndex(gpa, level)
		entry := table[idx]
		chain = append(chain, EntryDump{
			Level:     level,
			TableAddr: addr,
			Index:     idx,
			Entry:     entry,
		})

		if !entry.Present() || level == LevelPT {
			break
		}
		if level == LevelPD && entry.IsLarge() {
			break
		}

		if level == LevelPD && split != NoTable {
			id = split
			continue
		}
		id, err = h.arena.Resolve(entry.Address())
		if err != nil {
			return chain, fmt.Errorf("ept: %s for 0x%x links to 0x%x: %w", level, gpa, entry.Address(), err)
		}
	}
	return chain, nil
}

// FormatEntryChain renders a dumped chain as one line per level.
func FormatEntryChain(gpa uint64, chain []EntryDump) string {
	var b strings.Builder
	fmt.Fprintf(&b, "gpa 0x%x:\n", gpa)
	for _, d := range chain {
		fmt.Fprintf(&b, "  %s\n", d)
	}
	return b.String()
}

// DumpViews renders the entry chains of both views for gpa through the most
// recently installed hook's private split tables, logging each level. Used
// from the misconfiguration path and from verbose violation tracing.
// Returns ErrNoHookInstalled when the registry has never seen an install;
// a diagnostic record is required, index zero is not assumed.
func DumpViews(s *Shared, gpa uint64) (primary, secondary []EntryDump, err error) {
	hook, err := s.Hooks.Current()
	if err != nil {
		return nil, nil, err
	}

	logger.WithFields(logrus.Fields{
		"gpa":    fmt.Sprintf("0x%x", gpa),
		"hook":   fmt.Sprintf("0x%x", hook.GPA),
		"cursor": s.Hooks.Cursor(),
	}).Debug("dumping EPT entry chains")

	primary, perr := s.Primary.DumpEntries(gpa, hook.PrimaryPT)
	logChain("primary", gpa, primary, perr)
	secondary, serr := s.Secondary.DumpEntries(gpa, hook.SecondaryPT)
	logChain("secondary", gpa, secondary, serr)

	if perr != nil {
		return primary, secondary, perr
	}
	return primary, secondary, serr
}

func logChain(view string, gpa uint64, chain []EntryDump, err error) {
	for _, d := range chain {
		logger.WithField("view", view).Debug(d.String())
	}
	if err != nil {
		logger.WithField("view", view).WithError(err).Error("entry chain walk stopped early")
	}
}
