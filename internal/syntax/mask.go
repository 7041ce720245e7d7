package syntax

// maskResult is the Rust-compatible rendition of a Noir source. It has the
// same length as the input so every byte offset in the parse tree is also
// an offset into the original text.
type maskResult struct {
	src []byte
	// unconstrained holds the start offsets of blanked `unconstrained`
	// keywords, ascending.
	unconstrained []uint32
	// globals are the untyped globals blanked out of src, in source order.
	globals []maskedGlobal
}

// maskedGlobal is `[pub] global NAME = value;` with no type annotation. The
// Rust grammar has no untyped static, so the whole item is blanked and the
// parser re-adds it from these offsets.
type maskedGlobal struct {
	start, end         uint32
	nameStart, nameEnd uint32
	vis                Visibility
}

// maskNoir rewrites the Noir-only keywords the Rust grammar rejects:
//
//	global N: u32 = 1;      ->  static N: u32 = 1;
//	global N = 1;           ->  (blanked, recorded in globals)
//	unconstrained fn f()    ->  fn f() (keyword blanked)
//	comptime fn f()         ->  fn f() (keyword blanked)
//	fn main(x: pub Field)   ->  fn main(x: Field) (visibility blanked)
//
// Comments and string literals are left untouched.
func maskNoir(in []byte) maskResult {
	out := make([]byte, len(in))
	copy(out, in)
	res := maskResult{src: out}

	prev := ""
	n := len(out)
	for i := 0; i < n; {
		c := out[i]
		switch {
		case c == '/' && i+1 < n && out[i+1] == '/':
			for i < n && out[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && out[i+1] == '*':
			i = skipBlockComment(out, i)
		case c == '"':
			i = skipString(out, i)
			prev = `"`
		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(out[i]) {
				i++
			}
			word := string(out[start:i])
			switch {
			case word == "global" && nextIsIdent(out, i):
				if g, ok := untypedGlobal(out, start, i); ok {
					res.globals = append(res.globals, g)
					blank(out[g.start:g.end])
					i = int(g.end)
					prev = ";"
					continue
				}
				copy(out[start:i], "static")
			case word == "unconstrained":
				res.unconstrained = append(res.unconstrained, uint32(start))
				blank(out[start:i])
			case word == "comptime":
				blank(out[start:i])
			case word == "pub" && (prev == ":" || prev == "->"):
				blank(out[start:i])
				continue // prev stays the type-position marker
			}
			prev = word
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' && i+1 < n && out[i+1] == '>':
			prev = "->"
			i += 2
		default:
			prev = string(c)
			i++
		}
	}
	return res
}

// unconstrainedBetween reports whether an `unconstrained` keyword was
// blanked in [from, to).
func (m maskResult) unconstrainedBetween(from, to uint32) bool {
	for _, off := range m.unconstrained {
		if off >= from && off < to {
			return true
		}
	}
	return false
}

func skipBlockComment(b []byte, i int) int {
	depth := 0
	for i < len(b) {
		switch {
		case b[i] == '/' && i+1 < len(b) && b[i+1] == '*':
			depth++
			i += 2
		case b[i] == '*' && i+1 < len(b) && b[i+1] == '/':
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return i
}

func skipString(b []byte, i int) int {
	i++ // opening quote
	for i < len(b) {
		switch b[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		default:
			i++
		}
	}
	return i
}

// untypedGlobal matches `global NAME = ...;` where the keyword spans
// [kwStart, kwEnd). The item starts at a preceding `pub` or `pub(crate)`.
func untypedGlobal(b []byte, kwStart, kwEnd int) (maskedGlobal, bool) {
	nameStart := skipSpace(b, kwEnd)
	nameEnd := nameStart
	for nameEnd < len(b) && isIdentPart(b[nameEnd]) {
		nameEnd++
	}
	eq := skipSpace(b, nameEnd)
	if eq >= len(b) || b[eq] != '=' || (eq+1 < len(b) && b[eq+1] == '=') {
		return maskedGlobal{}, false
	}
	end, ok := statementEnd(b, eq+1)
	if !ok {
		return maskedGlobal{}, false
	}
	start, vis := visibilityBefore(b, kwStart)
	return maskedGlobal{
		start:     uint32(start),
		end:       uint32(end),
		nameStart: uint32(nameStart),
		nameEnd:   uint32(nameEnd),
		vis:       vis,
	}, true
}

// statementEnd returns the offset just past the `;` that ends the
// statement starting at i, skipping nested brackets, strings and comments.
func statementEnd(b []byte, i int) (int, bool) {
	depth := 0
	for i < len(b) {
		switch c := b[i]; {
		case c == '"':
			i = skipString(b, i)
			continue
		case c == '/' && i+1 < len(b) && b[i+1] == '/':
			for i < len(b) && b[i] != '\n' {
				i++
			}
			continue
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			i = skipBlockComment(b, i)
			continue
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			if depth == 0 {
				return 0, false
			}
			depth--
		case c == ';' && depth == 0:
			return i + 1, true
		}
		i++
	}
	return 0, false
}

// visibilityBefore looks for `pub` or `pub(...)` directly before the
// keyword at kw and returns where the item starts.
func visibilityBefore(b []byte, kw int) (int, Visibility) {
	k := skipSpaceBack(b, kw)
	vis := Public
	if k > 0 && b[k-1] == ')' {
		open := k - 1
		for open >= 0 && b[open] != '(' {
			open--
		}
		if open < 0 {
			return kw, Private
		}
		k = skipSpaceBack(b, open)
		vis = PublicCrate
	}
	if k >= 3 && string(b[k-3:k]) == "pub" && (k == 3 || !isIdentPart(b[k-4])) {
		return k - 3, vis
	}
	return kw, Private
}

func skipSpace(b []byte, i int) int {
	for i < len(b) && isSpace(b[i]) {
		i++
	}
	return i
}

func skipSpaceBack(b []byte, i int) int {
	for i > 0 && isSpace(b[i-1]) {
		i--
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func nextIsIdent(b []byte, i int) bool {
	i = skipSpace(b, i)
	return i < len(b) && isIdentStart(b[i])
}

func blank(b []byte) {
	for i := range b {
		b[i] = ' '
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
