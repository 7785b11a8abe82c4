package docpipe

import (
	"bytes"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// Content stream lexing and a text-only interpreter. Only the text state
// operators are honoured; graphics state (cm, q/Q) is ignored, which keeps
// positions consistent within a page.

type pdfTokKind int

const (
	tokNumber pdfTokKind = iota
	tokString
	tokName
	tokArray
	tokOperator
	tokOther
)

type pdfTok struct {
	kind pdfTokKind
	num  float64
	str  []byte // decoded string bytes, name, or operator
	arr  []pdfTok
}

// maxArrayDepth bounds array nesting in a content stream. Real streams
// only nest TJ arrays one level deep.
const maxArrayDepth = 64

var errArrayDepth = errors.New("content stream arrays nested too deeply")

type pdfLexer struct {
	data  []byte
	pos   int
	depth int
	err   error // set once the stream is abandoned
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (l *pdfLexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isPDFSpace(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

// next returns the next token, or false at end of data or once l.err is set.
func (l *pdfLexer) next() (pdfTok, bool) {
	l.skipSpace()
	if l.err != nil || l.pos >= len(l.data) {
		return pdfTok{}, false
	}
	c := l.data[l.pos]
	switch {
	case c == '(':
		return pdfTok{kind: tokString, str: l.literal()}, true
	case c == '<' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '<':
		l.pos += 2
		return pdfTok{kind: tokOther, str: []byte("<<")}, true
	case c == '>' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '>':
		l.pos += 2
		return pdfTok{kind: tokOther, str: []byte(">>")}, true
	case c == '<':
		return pdfTok{kind: tokString, str: l.hex()}, true
	case c == '[':
		if l.depth >= maxArrayDepth {
			l.err = errArrayDepth
			l.pos = len(l.data)
			return pdfTok{}, false
		}
		l.depth++
		defer func() { l.depth-- }()
		l.pos++
		var arr []pdfTok
		for {
			l.skipSpace()
			if l.pos >= len(l.data) {
				break
			}
			if l.data[l.pos] == ']' {
				l.pos++
				break
			}
			t, ok := l.next()
			if !ok {
				break
			}
			arr = append(arr, t)
		}
		return pdfTok{kind: tokArray, arr: arr}, true
	case c == '/':
		l.pos++
		start := l.pos
		for l.pos < len(l.data) && !isPDFSpace(l.data[l.pos]) && !isPDFDelim(l.data[l.pos]) {
			l.pos++
		}
		return pdfTok{kind: tokName, str: l.data[start:l.pos]}, true
	case c == ']' || c == ')' || c == '>' || c == '{' || c == '}':
		l.pos++
		return pdfTok{kind: tokOther, str: []byte{c}}, true
	}

	start := l.pos
	for l.pos < len(l.data) && !isPDFSpace(l.data[l.pos]) && !isPDFDelim(l.data[l.pos]) {
		l.pos++
	}
	word := l.data[start:l.pos]
	if n, err := strconv.ParseFloat(string(word), 64); err == nil {
		return pdfTok{kind: tokNumber, num: n}, true
	}
	return pdfTok{kind: tokOperator, str: word}, true
}

// literal reads a (…) string with balanced parentheses and returns it
// with escapes decoded.
func (l *pdfLexer) literal() []byte {
	l.pos++ // (
	start := l.pos
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '\\' {
			l.pos += 2
			continue
		}
		if c == '(' {
			depth++
		} else if c == ')' {
			depth--
			if depth == 0 {
				raw := l.data[start:l.pos]
				l.pos++
				return []byte(decodePDFString(raw))
			}
		}
		l.pos++
	}
	return []byte(decodePDFString(l.data[start:min(l.pos, len(l.data))]))
}

// hex reads a <…> hex string.
func (l *pdfLexer) hex() []byte {
	l.pos++ // <
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		if c := l.data[l.pos]; !isPDFSpace(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage advances past inline image data following an ID operator.
func (l *pdfLexer) skipInlineImage() {
	if l.pos < len(l.data) {
		l.pos++ // single whitespace after ID
	}
	for l.pos+2 <= len(l.data) {
		if l.data[l.pos] == 'E' && l.data[l.pos+1] == 'I' &&
			(l.pos == 0 || isPDFSpace(l.data[l.pos-1])) &&
			(l.pos+2 == len(l.data) || isPDFSpace(l.data[l.pos+2])) {
			l.pos += 2
			return
		}
		l.pos++
	}
	l.pos = len(l.data)
}

// decodePDFString handles PDF literal string escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case '\\', '(', ')':
				sb.WriteByte(raw[i])
			case '\r':
				if i+1 < len(raw) && raw[i+1] == '\n' {
					i++
				}
			case '\n':
				// line continuation
			default:
				// Octal escape (e.g. \040 for space).
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(raw[i]-'0')
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// pdfTextString turns shown string bytes into text: UTF-16BE with BOM,
// UTF-8 when valid, otherwise one rune per byte.
func pdfTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		u := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	if utf8.Valid(b) {
		return string(b)
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// textRun is one shown string with its starting position in text space.
type textRun struct {
	x, y  float64
	width float64
	size  float64
	text  string
}

// textLine is a set of runs sharing a baseline, sorted left to right.
type textLine struct {
	y    float64
	runs []textRun
}

type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// translate returns [1 0 0 1 tx ty] × m.
func (m matrix) translate(tx, ty float64) matrix {
	m[4] += tx*m[0] + ty*m[2]
	m[5] += tx*m[1] + ty*m[3]
	return m
}

// glyphWidth is the assumed average advance of one glyph, in units of the
// font size, when no font metrics are read.
const glyphWidth = 0.5

// scanTextRuns interprets a content stream and returns the shown strings
// with their positions. A stream the lexer abandons yields no runs.
func scanTextRuns(data []byte) ([]textRun, error) {
	l := &pdfLexer{data: data}
	var (
		runs      []textRun
		ops       []pdfTok
		tm, tlm   = identity, identity
		fontSize  = 12.0
		leading   float64
		charSpace float64
		wordSpace float64
	)

	num := func(i int) float64 {
		if i < 0 || i >= len(ops) || ops[i].kind != tokNumber {
			return 0
		}
		return ops[i].num
	}
	scale := func() (float64, float64) {
		sx := math.Hypot(tm[0], tm[1])
		sy := math.Hypot(tm[2], tm[3])
		if sx == 0 {
			sx = 1
		}
		if sy == 0 {
			sy = 1
		}
		return sx, sy
	}
	show := func(b []byte) {
		s := pdfTextString(b)
		if s == "" {
			return
		}
		sx, sy := scale()
		n := utf8.RuneCountInString(s)
		adv := (float64(n)*(glyphWidth*fontSize+charSpace) + float64(strings.Count(s, " "))*wordSpace) * sx
		runs = append(runs, textRun{x: tm[4], y: tm[5], width: adv, size: fontSize * sy, text: s})
		tm[4] += adv
	}
	nextLine := func() {
		tlm = tlm.translate(0, -leading)
		tm = tlm
	}

	for {
		t, ok := l.next()
		if !ok {
			break
		}
		if t.kind != tokOperator {
			ops = append(ops, t)
			continue
		}
		n := len(ops)
		switch string(t.str) {
		case "BT":
			tm, tlm = identity, identity
		case "Tf":
			if s := num(n - 1); s != 0 {
				fontSize = math.Abs(s)
			}
		case "TL":
			leading = num(n - 1)
		case "Tc":
			charSpace = num(n - 1)
		case "Tw":
			wordSpace = num(n - 1)
		case "Td":
			tlm = tlm.translate(num(n-2), num(n-1))
			tm = tlm
		case "TD":
			leading = -num(n - 1)
			tlm = tlm.translate(num(n-2), num(n-1))
			tm = tlm
		case "Tm":
			if n >= 6 {
				tlm = matrix{num(n - 6), num(n - 5), num(n - 4), num(n - 3), num(n - 2), num(n - 1)}
				tm = tlm
			}
		case "T*":
			nextLine()
		case "Tj":
			if n > 0 && ops[n-1].kind == tokString {
				show(ops[n-1].str)
			}
		case "'":
			nextLine()
			if n > 0 && ops[n-1].kind == tokString {
				show(ops[n-1].str)
			}
		case "\"":
			if n >= 3 {
				wordSpace, charSpace = num(n-3), num(n-2)
			}
			nextLine()
			if n > 0 && ops[n-1].kind == tokString {
				show(ops[n-1].str)
			}
		case "TJ":
			if n > 0 && ops[n-1].kind == tokArray {
				for _, el := range ops[n-1].arr {
					switch el.kind {
					case tokString:
						show(el.str)
					case tokNumber:
						sx, _ := scale()
						tm[4] -= el.num / 1000 * fontSize * sx
					}
				}
			}
		case "ID":
			l.skipInlineImage()
		}
		ops = ops[:0]
	}
	if l.err != nil {
		return nil, l.err
	}
	return runs, nil
}

// groupLines clusters runs by baseline, top of page first, runs left to right.
func groupLines(runs []textRun) []textLine {
	var lines []textLine
	for _, r := range runs {
		tol := math.Max(r.size*0.5, 1)
		placed := false
		for i := range lines {
			if math.Abs(lines[i].y-r.y) <= tol {
				lines[i].runs = append(lines[i].runs, r)
				placed = true
				break
			}
		}
		if !placed {
			lines = append(lines, textLine{y: r.y, runs: []textRun{r}})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })
	for i := range lines {
		sort.SliceStable(lines[i].runs, func(a, b int) bool { return lines[i].runs[a].x < lines[i].runs[b].x })
	}
	return lines
}

// lineText joins the runs of a line, inserting a space where the gap
// between two runs is wider than a fraction of the font size.
func lineText(l textLine) string {
	var sb strings.Builder
	for i, r := range l.runs {
		if i > 0 {
			prev := l.runs[i-1]
			if r.x-(prev.x+prev.width) > 0.2*r.size {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(r.text)
	}
	return cleanPDFText(sb.String())
}

// pageText renders the content stream of one page as newline-separated lines.
func pageText(data []byte) (string, error) {
	runs, err := scanTextRuns(data)
	if err != nil {
		return "", err
	}
	lines := groupLines(runs)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if s := lineText(l); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n"), nil
}

// cleanPDFText collapses whitespace runs and drops non-printable characters.
func cleanPDFText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

// isBlank reports whether b holds only PDF whitespace.
func isBlank(b []byte) bool {
	return len(bytes.TrimFunc(b, func(r rune) bool { return r < utf8.RuneSelf && isPDFSpace(byte(r)) })) == 0
}
