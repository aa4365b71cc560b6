package sgf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrParse = errors.New("sgf parse failure")

type node map[string][]string

func (n node) first(key string) (string, bool) {
	v := n[key]
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

func (n node) text(key string) string {
	v, _ := n.first(key)
	return strings.TrimSpace(v)
}

// Parse reads the main line of a game record. Side variations are skipped
// structurally. Malformed coordinates degrade to passes; only an empty input, a
// record without nodes or an unterminated tree or value is an error.
func Parse(text string) (*Record, error) {
	src := strings.TrimSpace(text)
	if src == "" {
		return nil, fmt.Errorf("%w: empty input", ErrParse)
	}

	p := &parser{src: src}
	p.skipSpace()
	if !p.consume('(') {
		return nil, fmt.Errorf("%w: record must start with '('", ErrParse)
	}
	nodes, err := p.tree(nil)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrParse)
	}
	return decode(nodes), nil
}

func decode(nodes []node) *Record {
	root := nodes[0]
	rec := &Record{BoardSize: DefaultBoardSize, Moves: []Move{}}

	if sz, ok := root.first("SZ"); ok {
		// "19" or the rectangular "19:19" form
		head, _, _ := strings.Cut(strings.TrimSpace(sz), ":")
		if n, err := strconv.Atoi(head); err == nil && n >= MinBoardSize && n <= MaxBoardSize {
			rec.BoardSize = n
		}
	}
	if km, ok := root.first("KM"); ok {
		if k, err := strconv.ParseFloat(strings.TrimSpace(km), 64); err == nil {
			rec.Komi = k
		}
	}

	rec.Meta = Meta{
		Black:   root.text("PB"),
		White:   root.text("PW"),
		Result:  root.text("RE"),
		Rules:   root.text("RU"),
		Comment: root.text("C"),
	}
	if rec.Komi != 0 {
		k := rec.Komi
		rec.Meta.Komi = &k
	}

	rec.Setup = Setup{
		Black: expandPoints(root["AB"]),
		White: expandPoints(root["AW"]),
		Empty: expandPoints(root["AE"]),
	}
	if pl, ok := root.first("PL"); ok {
		if c, ok := ColorFromGTP(strings.TrimSpace(pl)); ok {
			rec.Setup.ToPlay = c
		}
	}

	index := 0
	for _, n := range nodes[1:] {
		if mn, ok := n.first("MN"); ok {
			if v, err := strconv.Atoi(strings.TrimSpace(mn)); err == nil {
				index = max(v-1, 0)
			}
		}

		var (
			color Color
			raw   string
		)
		if v, ok := n.first("B"); ok {
			color, raw = Black, v
		} else if v, ok := n.first("W"); ok {
			color, raw = White, v
		} else {
			continue
		}

		index++
		coord := normalizeCoord(raw)
		if _, ok := ToPoint(coord, rec.BoardSize); !ok {
			coord = ""
		}
		rec.Moves = append(rec.Moves, Move{
			Index:   index,
			Color:   color,
			Coord:   coord,
			Comment: n.text("C"),
		})
	}
	return rec
}

type parser struct {
	src string
	pos int
}

// tree reads a game tree whose '(' has been consumed. Nodes of the first
// variation are appended to the main line; later siblings are skipped.
func (p *parser) tree(nodes []node) ([]node, error) {
	descended := false
	for {
		p.skipSpace()
		if p.eof() {
			return nil, fmt.Errorf("%w: unterminated game tree", ErrParse)
		}
		switch p.src[p.pos] {
		case ';':
			p.pos++
			n, err := p.node()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		case '(':
			p.pos++
			var err error
			if descended {
				err = p.skipTree()
			} else {
				descended = true
				nodes, err = p.tree(nodes)
			}
			if err != nil {
				return nil, err
			}
		case ')':
			p.pos++
			return nodes, nil
		default:
			p.pos++
		}
	}
}

func (p *parser) node() (node, error) {
	n := node{}
	for {
		p.skipSpace()
		name := p.ident()
		if name == "" {
			return n, nil
		}
		values, err := p.values()
		if err != nil {
			return nil, err
		}
		n[name] = append(n[name], values...)
	}
}

// ident reads a property name. Lower-case letters are accepted and dropped, as
// in old-style names like "AddBlack".
func (p *parser) ident() string {
	var b strings.Builder
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if c >= 'A' && c <= 'Z' {
			b.WriteByte(c)
		} else if c < 'a' || c > 'z' {
			break
		}
		p.pos++
	}
	if b.Len() == 0 {
		p.pos = start
	}
	return b.String()
}

func (p *parser) values() ([]string, error) {
	var out []string
	for {
		p.skipSpace()
		if !p.consume('[') {
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (p *parser) value() (string, error) {
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case ']':
			return b.String(), nil
		case '\\':
			if p.eof() {
				return "", fmt.Errorf("%w: unterminated value", ErrParse)
			}
			next := p.src[p.pos]
			p.pos++
			// an escaped line break is a soft break and disappears
			if next == '\r' || next == '\n' {
				p.skipLineBreak(next)
				continue
			}
			b.WriteByte(next)
		case '\r':
			p.skipLineBreak(c)
			b.WriteByte('\n')
		default:
			b.WriteByte(c)
		}
	}
	return "", fmt.Errorf("%w: unterminated value", ErrParse)
}

func (p *parser) skipLineBreak(first byte) {
	if first == '\r' && !p.eof() && p.src[p.pos] == '\n' {
		p.pos++
	}
}

// skipTree discards a subtree whose '(' has been consumed.
func (p *parser) skipTree() error {
	depth := 1
	for !p.eof() {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case '[':
			if _, err := p.value(); err != nil {
				return err
			}
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: unterminated subtree", ErrParse)
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) consume(c byte) bool {
	if !p.eof() && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }
