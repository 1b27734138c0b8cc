package aurora

import (
	"bytes"
	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Patcher walks a module once, swapping string records and neutralizing the
// mode-check jumps.
type Patcher struct {
	platform   Platform
	encoding   Encoding
	table      []Substitution
	exhaustive bool
	patchJumps bool
	log        logrus.FieldLogger
}

// Option configures a Patcher.
type Option func(*Patcher)

// WithEncoding overrides the instruction signature, which defaults to
// HostEncoding().
func WithEncoding(encoding Encoding) Option {
	return func(p *Patcher) { p.encoding = encoding }
}

// WithTable replaces the default substitution table. An empty table patches
// only the jumps.
func WithTable(table []Substitution) Option {
	return func(p *Patcher) {
		p.table = make([]Substitution, len(table))
		copy(p.table, table)
	}
}

// WithExhaustiveScan disables the early exit once every substitution has
// been applied, so the walk always covers the whole module and cannot miss a
// jump site that lies after the last string.
func WithExhaustiveScan(exhaustive bool) Option {
	return func(p *Patcher) { p.exhaustive = exhaustive }
}

// WithInstructionPatch enables or disables neutralizing the mode-check jumps.
// Enabled by default.
func WithInstructionPatch(enabled bool) Option {
	return func(p *Patcher) { p.patchJumps = enabled }
}

// WithLogger sets the logger. Defaults to logrus.StandardLogger().
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Patcher) { p.log = log }
}

// NewPatcher validates the configuration. Every table entry is checked so
// that no replacement can overrun the record it replaces.
func NewPatcher(platform Platform, opts ...Option) (*Patcher, error) {
	p := &Patcher{
		platform:   platform,
		encoding:   HostEncoding(),
		patchJumps: true,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.table == nil {
		p.table = DefaultTable()
	}
	for i := range p.table {
		if err := p.table[i].validate(); err != nil {
			return nil, errors.WithMessagef(err, "substitution %d", i)
		}
	}
	return p, nil
}

// Result is what a single walk did.
type Result struct {
	// Successful string writes. Each occurrence counts, so a literal present
	// twice counts twice.
	SwapsDone int

	// Jump sites filled with NOPs, at most 2.
	JumpsPatched int

	// Offset the walk finished at. Equals the module size when the walk ran
	// to the end.
	StopOffset int

	// True when the walk exited early because every substitution was
	// applied.
	Stopped bool

	// Attempts that were skipped. The walk carries on past all of them.
	Failures []error
}

// Err joins the recorded failures, or returns nil. Every failure stays
// reachable through errors.Is.
func (r Result) Err() error {
	return stderrors.Join(r.Failures...)
}

type walk struct {
	*Patcher
	mem       []byte
	base      uintptr
	jumpsDone bool
	result    Result
}

// Patch walks mem, which is the module mapped at base. mem must stay mapped
// for the duration of the call.
//
// At every offset the instruction signature is tried first, then every
// substitution. Unless the scan is exhaustive the walk stops as soon as the
// number of string writes reaches the table size, so a jump site lying after
// the last string is not reached.
func (p *Patcher) Patch(mem []byte, base uintptr) Result {
	w := &walk{Patcher: p, mem: mem, base: base, jumpsDone: !p.patchJumps}
	w.result.StopOffset = len(mem)

	for offset := 0; offset < len(mem); offset++ {
		if !w.jumpsDone && p.encoding.Match(mem, offset) {
			w.neutralizeJumps(offset)
		}
		for i := range p.table {
			w.swap(offset, &p.table[i])
		}
		if !p.exhaustive && len(p.table) > 0 && w.result.SwapsDone >= len(p.table) {
			w.result.StopOffset = offset
			w.result.Stopped = true
			break
		}
	}

	p.log.WithFields(logrus.Fields{
		"swaps":    w.result.SwapsDone,
		"jumps":    w.result.JumpsPatched,
		"offset":   w.result.StopOffset,
		"failures": len(w.result.Failures),
	}).Info("patch walk finished")
	return w.result
}

// Apply resolves the module through the platform and patches it.
func (p *Patcher) Apply() (Result, error) {
	region, err := p.platform.ResolveModule()
	if err != nil {
		return Result{}, err
	}
	p.log.WithFields(logrus.Fields{
		"start":    region.Start,
		"end":      region.End(),
		"encoding": p.encoding,
	}).Debug("resolved module")
	return p.Patch(SliceAtAddress(region.Start, region.Size), region.Start), nil
}

func (w *walk) fail(err error) {
	w.log.WithError(err).Warn("patch attempt skipped")
	w.result.Failures = append(w.result.Failures, err)
}

func (w *walk) write(offset int, data []byte) error {
	return applyToProtectedMemory(w.platform, w.base+uintptr(offset), len(data), func() {
		copy(w.mem[offset:], data)
	})
}

// neutralizeJumps fills the signature's jz at offset and the next jz after
// it. Both sites are located before anything is written, so a module holding
// fewer than two is left untouched.
func (w *walk) neutralizeJumps(offset int) {
	w.jumpsDone = true
	sites, err := findJumps(w.mem, offset+w.encoding.JumpOffset(), 2)
	if err != nil {
		w.fail(err)
		return
	}

	fill := bytes.Repeat([]byte{NOP}, JumpPatchSize)
	for _, site := range sites {
		if err := w.write(site, fill); err != nil {
			w.fail(errors.WithMessagef(err, "jump at offset 0x%x", site))
			if !errors.Is(err, ErrProtectionRestore) {
				continue
			}
		}
		w.result.JumpsPatched++
		w.log.WithField("address", w.base+uintptr(site)).Debug("neutralized jump")
	}
}

func (w *walk) swap(offset int, sub *Substitution) {
	end := offset + len(sub.oldBytes)
	if end > len(w.mem) || !bytes.Equal(w.mem[offset:end], sub.oldBytes) {
		return
	}
	if err := w.write(offset, sub.newBytes); err != nil {
		w.fail(errors.WithMessagef(err, "record %q at offset 0x%x", sub.Old.String(), offset))
		// A failed restore still wrote the record.
		if !errors.Is(err, ErrProtectionRestore) {
			return
		}
	}
	w.result.SwapsDone++
	w.log.WithFields(logrus.Fields{
		"address": w.base + uintptr(offset),
		"old":     sub.Old.String(),
		"new":     sub.New.String(),
	}).Debug("swapped string record")
}
