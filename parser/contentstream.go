package parser

import (
	"bytes"
	"strconv"
)

type operandKind int

const (
	operandNull operandKind = iota
	operandNumber
	operandBool
	operandString
	operandName
	operandArray
	operandDict
)

// operand is one value pushed before a content stream operator. Strings
// hold raw bytes; font decoding happens when they are shown.
type operand struct {
	kind operandKind
	num  float64
	b    bool
	str  string
	// elems holds array elements, or alternating keys and values for a
	// dictionary.
	elems []operand
}

// contentOp is an operator with the operands that preceded it. An inline
// image is reported once as "BI" carrying its dictionary entries as
// alternating key and value operands.
type contentOp struct {
	name string
	args []operand
}

// contentScanner splits a decoded content stream into operations. Inline
// image samples are skipped at the byte level so binary data never reaches
// the tokenizer.
type contentScanner struct {
	data []byte
	pos  int
}

// scanContent calls fn for every operation in data, in stream order.
func scanContent(data []byte, fn func(op contentOp)) {
	s := &contentScanner{data: data}
	var stack []operand

	for {
		s.skipSpace()
		if s.pos >= len(s.data) {
			return
		}

		c := s.data[s.pos]
		if !isRegular(c) || isNumberStart(c) {
			if v, ok := s.operand(); ok {
				stack = append(stack, v)
			}
			continue
		}

		kw := s.keyword()
		switch kw {
		case "true", "false":
			stack = append(stack, operand{kind: operandBool, b: kw == "true"})
			continue
		case "null":
			stack = append(stack, operand{})
			continue
		case "BI":
			fn(contentOp{name: "BI", args: s.inlineImage()})
			stack = nil
			continue
		}

		fn(contentOp{name: kw, args: stack})
		stack = nil
	}
}

// inlineImage reads the dictionary after BI, then skips the sample bytes
// through the matching EI.
func (s *contentScanner) inlineImage() []operand {
	var dict []operand
	for {
		s.skipSpace()
		if s.pos >= len(s.data) {
			return dict
		}
		c := s.data[s.pos]
		if isRegular(c) && !isNumberStart(c) {
			kw := s.keyword()
			switch kw {
			case "ID":
				s.skipSampleData(dict)
				return dict
			case "EI":
				return dict
			case "true", "false":
				dict = append(dict, operand{kind: operandBool, b: kw == "true"})
			default:
				// Bare words inside the dictionary are kept as names.
				dict = append(dict, operand{kind: operandName, str: kw})
			}
			continue
		}
		if v, ok := s.operand(); ok {
			dict = append(dict, v)
		}
	}
}

// skipSampleData moves past the image samples and the EI that ends them.
// EI only counts when it is a separate token, so sample bytes that happen to
// contain "EI" are not mistaken for the end. A length in /L or /Length is
// used as the minimum sample size.
func (s *contentScanner) skipSampleData(dict []operand) {
	// A single white-space byte separates ID from the samples.
	if s.pos < len(s.data) && isSpace(s.data[s.pos]) {
		s.pos++
	}

	from := s.pos
	for i := 0; i+1 < len(dict); i += 2 {
		if k := dict[i].str; (k == "L" || k == "Length") && dict[i+1].kind == operandNumber {
			if n := int(dict[i+1].num); n > 0 && from+n <= len(s.data) {
				from += n
			}
		}
	}

	start := s.pos
	for i := from; i+1 < len(s.data); i++ {
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		if i > start && !isSpace(s.data[i-1]) {
			continue
		}
		if i+2 < len(s.data) && isRegular(s.data[i+2]) {
			continue
		}
		s.pos = i + 2
		return
	}
	s.pos = len(s.data)
}

// operand reads the value at the current position. It reports false for
// stray delimiters, which are skipped.
func (s *contentScanner) operand() (operand, bool) {
	c := s.data[s.pos]
	switch {
	case c == '(':
		return operand{kind: operandString, str: s.literalString()}, true
	case c == '<' && s.peek(1) == '<':
		s.pos += 2
		return operand{kind: operandDict, elems: s.sequence(">>")}, true
	case c == '<':
		return operand{kind: operandString, str: s.hexString()}, true
	case c == '/':
		return operand{kind: operandName, str: s.name()}, true
	case c == '[':
		s.pos++
		return operand{kind: operandArray, elems: s.sequence("]")}, true
	case isNumberStart(c):
		return s.number(), true
	case isRegular(c):
		kw := s.keyword()
		switch kw {
		case "true", "false":
			return operand{kind: operandBool, b: kw == "true"}, true
		}
		return operand{}, true
	default:
		s.pos++
		return operand{}, false
	}
}

// sequence reads operands until the closing delimiter.
func (s *contentScanner) sequence(end string) []operand {
	var elems []operand
	for {
		s.skipSpace()
		if s.pos >= len(s.data) {
			return elems
		}
		if bytes.HasPrefix(s.data[s.pos:], []byte(end)) {
			s.pos += len(end)
			return elems
		}
		if v, ok := s.operand(); ok {
			elems = append(elems, v)
		}
	}
}

func (s *contentScanner) number() operand {
	start := s.pos
	s.pos++
	for s.pos < len(s.data) && isRegular(s.data[s.pos]) {
		s.pos++
	}
	f, err := strconv.ParseFloat(string(s.data[start:s.pos]), 64)
	if err != nil {
		return operand{kind: operandNumber}
	}
	return operand{kind: operandNumber, num: f}
}

func (s *contentScanner) keyword() string {
	start := s.pos
	for s.pos < len(s.data) && isRegular(s.data[s.pos]) {
		s.pos++
	}
	return string(s.data[start:s.pos])
}

func (s *contentScanner) name() string {
	s.pos++ // '/'
	var b bytes.Buffer
	for s.pos < len(s.data) && isRegular(s.data[s.pos]) {
		c := s.data[s.pos]
		if c == '#' && s.pos+2 < len(s.data) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			b.WriteByte(hexValue(s.data[s.pos+1])<<4 | hexValue(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		b.WriteByte(c)
		s.pos++
	}
	return b.String()
}

func (s *contentScanner) literalString() string {
	s.pos++ // '('
	var b bytes.Buffer
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return b.String()
			}
		case '\\':
			s.escape(&b)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (s *contentScanner) escape(b *bytes.Buffer) {
	if s.pos >= len(s.data) {
		return
	}
	c := s.data[s.pos]
	s.pos++
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case '\r':
		if s.peek(0) == '\n' {
			s.pos++
		}
	case '\n':
	case '0', '1', '2', '3', '4', '5', '6', '7':
		v := int(c - '0')
		for i := 0; i < 2 && s.pos < len(s.data); i++ {
			d := s.data[s.pos]
			if d < '0' || d > '7' {
				break
			}
			v = v*8 + int(d-'0')
			s.pos++
		}
		b.WriteByte(byte(v))
	default:
		b.WriteByte(c)
	}
}

func (s *contentScanner) hexString() string {
	s.pos++ // '<'
	var b bytes.Buffer
	var hi byte
	odd := false
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			break
		}
		if !isHex(c) {
			continue
		}
		if odd {
			b.WriteByte(hi<<4 | hexValue(c))
		} else {
			hi = hexValue(c)
		}
		odd = !odd
	}
	if odd {
		b.WriteByte(hi << 4)
	}
	return b.String()
}

func (s *contentScanner) skipSpace() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if c == '%' {
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		if !isSpace(c) {
			return
		}
		s.pos++
	}
}

func (s *contentScanner) peek(off int) byte {
	if s.pos+off < len(s.data) {
		return s.data[s.pos+off]
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !isSpace(c) && !isDelimiter(c) }

func isNumberStart(c byte) bool {
	return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
