package dictionary

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/teatak/latseg/config"
)

// NoID marks an absent designated unit.
const NoID = -1

// Options names the designated units of a vocabulary.
type Options struct {
	PadToken string
	UnkToken string
	BOSToken string
	Specials []string

	// ContinuationPrefix marks units that may only start inside a
	// pre-token (e.g. "##").
	ContinuationPrefix string

	// MaxUnitLength rejects longer learnable units. Zero disables the check.
	MaxUnitLength int
}

// OptionsFromConfig picks the vocabulary settings out of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	opts := Options{
		PadToken:           cfg.PadToken,
		UnkToken:           cfg.UnkToken,
		Specials:           cfg.Specials,
		ContinuationPrefix: cfg.ContinuationPrefix,
		MaxUnitLength:      cfg.MaxUnitLength,
	}
	if cfg.AddBOS {
		opts.BOSToken = cfg.BOSToken
	}
	return opts
}

// Dictionary is an ordered, bijective mapping between units and ids.
// It is immutable after New except for AddSpecial.
type Dictionary struct {
	units   []string
	ids     map[string]int
	special []bool

	PadID  int
	UnkID  int
	BOSID  int
	MaxLen int // longest learnable unit, in characters

	opts          Options
	prefix        string
	maxUnitLength int
}

// New builds a vocabulary from units in order. Designated tokens missing
// from units are appended after them.
func New(units []string, opts Options) (*Dictionary, error) {
	if opts.PadToken == "" {
		return nil, errors.WithMessage(ErrMissingPad, "dictionary")
	}
	d := &Dictionary{
		ids:           make(map[string]int, len(units)+3),
		PadID:         NoID,
		UnkID:         NoID,
		BOSID:         NoID,
		opts:          opts,
		prefix:        opts.ContinuationPrefix,
		maxUnitLength: opts.MaxUnitLength,
	}

	pinned := map[string]bool{opts.PadToken: true}
	if opts.BOSToken != "" {
		pinned[opts.BOSToken] = true
	}
	for _, s := range opts.Specials {
		pinned[s] = true
	}

	for _, u := range units {
		if _, err := d.add(u, pinned[u], pinned[u] || u == opts.UnkToken); err != nil {
			return nil, err
		}
	}

	var err error
	if d.PadID, err = d.ensure(opts.PadToken, true); err != nil {
		return nil, err
	}
	if opts.UnkToken != "" {
		if d.UnkID, err = d.ensure(opts.UnkToken, false); err != nil {
			return nil, err
		}
	}
	if opts.BOSToken != "" {
		if d.BOSID, err = d.ensure(opts.BOSToken, true); err != nil {
			return nil, err
		}
	}
	for _, s := range opts.Specials {
		if _, err := d.ensure(s, true); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dictionary) ensure(unit string, special bool) (int, error) {
	if id, ok := d.ids[unit]; ok {
		return id, nil
	}
	return d.add(unit, special, true)
}

// add appends unit. Designated units are never matched against text, so
// they are exempt from the length limit.
func (d *Dictionary) add(unit string, special, designated bool) (int, error) {
	if unit == "" {
		return NoID, errors.WithMessagef(ErrEmptyUnit, "at id %d", len(d.units))
	}
	if id, ok := d.ids[unit]; ok {
		return NoID, errors.WithMessagef(ErrDuplicateUnit, "%q at ids %d and %d", unit, id, len(d.units))
	}
	if !designated {
		n := d.UnitLen(unit)
		if d.maxUnitLength > 0 && n > d.maxUnitLength {
			return NoID, errors.WithMessagef(ErrUnitTooLong, "%q has %d characters, max %d", unit, n, d.maxUnitLength)
		}
		if n > d.MaxLen {
			d.MaxLen = n
		}
	}
	id := len(d.units)
	d.units = append(d.units, unit)
	d.special = append(d.special, special)
	d.ids[unit] = id
	return id, nil
}

// AddSpecial appends a pinned unit and returns its id. Adding an existing
// unit marks it special.
func (d *Dictionary) AddSpecial(unit string) (int, error) {
	if id, ok := d.ids[unit]; ok {
		d.special[id] = true
		return id, nil
	}
	return d.add(unit, true, true)
}

// Len returns the vocabulary size.
func (d *Dictionary) Len() int { return len(d.units) }

// ID returns the id of unit.
func (d *Dictionary) ID(unit string) (int, bool) {
	id, ok := d.ids[unit]
	return id, ok
}

// Unit returns the string of id, or "" when out of range.
func (d *Dictionary) Unit(id int) string {
	if id < 0 || id >= len(d.units) {
		return ""
	}
	return d.units[id]
}

// Units returns the units in id order.
func (d *Dictionary) Units() []string {
	out := make([]string, len(d.units))
	copy(out, d.units)
	return out
}

// Contains checks if a unit exists in the dictionary.
func (d *Dictionary) Contains(unit string) bool {
	_, ok := d.ids[unit]
	return ok
}

// IsPadding reports whether id is the padding unit.
func (d *Dictionary) IsPadding(id int) bool { return id == d.PadID }

// IsSpecial reports whether id's weight is pinned rather than learned.
func (d *Dictionary) IsSpecial(id int) bool {
	return id >= 0 && id < len(d.special) && d.special[id]
}

// Specials returns the pinned ids in ascending order, padding excluded.
func (d *Dictionary) Specials() []int {
	var out []int
	for id, s := range d.special {
		if s && id != d.PadID {
			out = append(out, id)
		}
	}
	return out
}

// Learnable reports whether id carries a learned weight.
func (d *Dictionary) Learnable(id int) bool {
	return id >= 0 && id < len(d.units) && !d.special[id]
}

// Options returns the settings d was built with. Units added through
// AddSpecial are listed among the specials.
func (d *Dictionary) Options() Options {
	opts := d.opts
	opts.Specials = append([]string(nil), d.opts.Specials...)
	for _, id := range d.Specials() {
		u := d.units[id]
		if id != d.BOSID && !contains(opts.Specials, u) {
			opts.Specials = append(opts.Specials, u)
		}
	}
	return opts
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ContinuationPrefix returns the prefix of word-internal units.
func (d *Dictionary) ContinuationPrefix() string { return d.prefix }

// UnitLen returns the number of text characters a unit covers.
func (d *Dictionary) UnitLen(unit string) int {
	if d.prefix != "" && len(unit) > len(d.prefix) && strings.HasPrefix(unit, d.prefix) {
		unit = unit[len(d.prefix):]
	}
	return utf8.RuneCountInString(unit)
}

// Load reads a vocabulary file. Each line is a unit optionally followed by
// tab-separated log-weights (one per mixture component). The returned
// weights are nil when the file carries none.
func Load(path string, opts Options) (*Dictionary, [][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open vocabulary %q", path)
	}
	defer file.Close()

	var units []string
	var weights [][]float64
	width := -1
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		units = append(units, parts[0])

		row := make([]float64, 0, len(parts)-1)
		for _, p := range parts[1:] {
			w, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "%s:%d: bad weight", path, lineNo)
			}
			row = append(row, w)
		}
		if width < 0 {
			width = len(row)
		} else if width != len(row) {
			return nil, nil, errors.Errorf("%s:%d: %d weights, previous lines have %d", path, lineNo, len(row), width)
		}
		weights = append(weights, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read vocabulary %q", path)
	}

	d, err := New(units, opts)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "vocabulary %q", path)
	}
	if width <= 0 {
		return d, nil, nil
	}
	return d, weights, nil
}
