package search

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"

	"mailsearch/internal/mailbox"
)

// dateLayouts are the accepted forms of an IMAP date argument.
var dateLayouts = []string{"2-Jan-2006", "02-Jan-2006"}

// simpleFlags are the flag keys that test a single flag column.
var simpleFlags = map[string]FlagCond{
	"ANSWERED":   {FlagAnswered, true},
	"DELETED":    {FlagDeleted, true},
	"DRAFT":      {FlagDraft, true},
	"FLAGGED":    {FlagFlagged, true},
	"RECENT":     {FlagRecent, true},
	"SEEN":       {FlagSeen, true},
	"UNANSWERED": {FlagAnswered, false},
	"UNDELETED":  {FlagDeleted, false},
	"UNDRAFT":    {FlagDraft, false},
	"UNFLAGGED":  {FlagFlagged, false},
	"UNSEEN":     {FlagSeen, false},
	"OLD":        {FlagRecent, false},
}

// headerKeys map the shorthand header keys onto their field names.
var headerKeys = map[string]string{
	"BCC":     "bcc",
	"CC":      "cc",
	"FROM":    "from",
	"SUBJECT": "subject",
	"TO":      "to",
}

var dateKinds = map[string]Kind{
	"BEFORE":     KindBefore,
	"ON":         KindOn,
	"SINCE":      KindSince,
	"SENTBEFORE": KindSentBefore,
	"SENTON":     KindSentOn,
	"SENTSINCE":  KindSentSince,
}

var numberKinds = map[string]Kind{
	"LARGER":  KindSizeLarger,
	"SMALLER": KindSizeSmaller,
	"OLDER":   KindOlder,
	"YOUNGER": KindYounger,
}

// isSearchKey reports whether tok starts a search term.
func isSearchKey(tok string) bool {
	up := strings.ToUpper(tok)
	if _, ok := simpleFlags[up]; ok {
		return true
	}
	if _, ok := headerKeys[up]; ok {
		return true
	}
	if _, ok := dateKinds[up]; ok {
		return true
	}
	if _, ok := numberKinds[up]; ok {
		return true
	}
	switch up {
	case "ALL", "NEW", "NOT", "OR", "(", "UID", "KEYWORD", "UNKEYWORD", "HEADER",
		"BODY", "TEXT", "MODSEQ", "CHARSET":
		return true
	}
	return mailbox.IsSetToken(tok)
}

type compiler struct {
	tokens  []string
	pos     *int
	tree    *Tree
	decoder *encoding.Decoder
}

// Compile builds a predicate tree from tokens starting at *cursor and advances
// the cursor past every token consumed. In sort mode the tokens start with the
// sort criteria and in thread mode with the algorithm; both continue with an
// optional charset and the search keys.
func Compile(tokens []string, cursor *int, mode Mode) (*Tree, error) {
	c := &compiler{
		tokens: tokens,
		pos:    cursor,
		tree:   &Tree{Mode: mode},
	}
	c.tree.add(Node{Kind: KindAnd})

	switch mode {
	case ModeSort:
		if err := c.sortCriteria(); err != nil {
			return nil, err
		}
		if err := c.optionalCharset(nil); err != nil {
			return nil, err
		}
	case ModeThread:
		if err := c.threadAlgorithm(); err != nil {
			return nil, err
		}
		if err := c.optionalCharset(threadCharsets); err != nil {
			return nil, err
		}
	}

	if err := c.searchKeys(); err != nil {
		return nil, err
	}
	return c.tree, nil
}

func (c *compiler) peek() (string, bool) {
	if *c.pos >= len(c.tokens) {
		return "", false
	}
	return c.tokens[*c.pos], true
}

func (c *compiler) next() (string, bool) {
	tok, ok := c.peek()
	if ok {
		*c.pos++
	}
	return tok, ok
}

// operand consumes the argument of key.
func (c *compiler) operand(key string) (string, error) {
	tok, ok := c.next()
	if !ok {
		return "", syntaxErr(key, "missing operand")
	}
	return tok, nil
}

// literal decodes a string operand from the active charset. Undecodable input
// is matched as given.
func (c *compiler) literal(s string) string {
	if c.decoder == nil {
		return s
	}
	out, err := c.decoder.String(s)
	if err != nil {
		return s
	}
	return out
}

func (c *compiler) setCharset(name string) error {
	dec, err := literalDecoder(name)
	if err != nil {
		return err
	}
	c.tree.Charset = strings.ToUpper(name)
	c.decoder = dec
	return nil
}

// searchKeys compiles the search keys under the root. The first child is the
// initial set, either given by the caller or the catch-all "1:*".
func (c *compiler) searchKeys() error {
	initial := "1:*"
	if tok, ok := c.peek(); ok && mailbox.IsSetToken(tok) {
		if _, err := mailbox.ParseNumSet(tok); err != nil {
			return syntaxErr(tok, err.Error())
		}
		initial = tok
		*c.pos++
	}
	idx := c.tree.add(Node{Kind: KindSequenceSet, Value: initial})
	c.tree.Nodes[root].Children = append([]int{idx}, c.tree.Nodes[root].Children...)

	for {
		tok, ok := c.peek()
		if !ok {
			return nil
		}
		if tok == ")" {
			return syntaxErr(tok, "unbalanced parentheses")
		}
		idx, err := c.term()
		if err != nil {
			return err
		}
		if idx >= 0 {
			c.tree.appendChild(root, idx)
		}
	}
}

// term compiles one search key and returns its node index, or -1 when the key
// only changes compiler state (CHARSET, MODSEQ).
func (c *compiler) term() (int, error) {
	tok, ok := c.next()
	if !ok {
		return -1, syntaxErr("", "missing search key")
	}
	key := strings.ToUpper(tok)

	if cond, ok := simpleFlags[key]; ok {
		return c.tree.add(Node{Kind: KindFlag, Flags: []FlagCond{cond}}), nil
	}
	if field, ok := headerKeys[key]; ok {
		val, err := c.operand(key)
		if err != nil {
			return -1, err
		}
		return c.tree.add(Node{Kind: KindHeader, Field: field, Value: c.literal(val)}), nil
	}
	if kind, ok := dateKinds[key]; ok {
		val, err := c.operand(key)
		if err != nil {
			return -1, err
		}
		date, err := parseDate(val)
		if err != nil {
			return -1, syntaxErr(val, "invalid date")
		}
		return c.tree.add(Node{Kind: kind, Date: date}), nil
	}
	if kind, ok := numberKinds[key]; ok {
		val, err := c.operand(key)
		if err != nil {
			return -1, err
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil || n < 0 {
			return -1, syntaxErr(val, "invalid number")
		}
		return c.tree.add(Node{Kind: kind, Number: n}), nil
	}

	switch key {
	case "ALL":
		return c.tree.add(Node{Kind: KindUIDSet, Value: "1:*"}), nil

	case "NEW":
		return c.tree.add(Node{Kind: KindFlag, Flags: []FlagCond{
			{FlagSeen, false},
			{FlagRecent, true},
		}}), nil

	case "UID":
		val, err := c.operand(key)
		if err != nil {
			return -1, err
		}
		if _, err := mailbox.ParseNumSet(val); err != nil {
			return -1, syntaxErr(val, err.Error())
		}
		return c.tree.add(Node{Kind: KindUIDSet, Value: val}), nil

	case "KEYWORD", "UNKEYWORD":
		val, err := c.operand(key)
		if err != nil {
			return -1, err
		}
		kind := KindKeyword
		if key == "UNKEYWORD" {
			kind = KindUnKeyword
		}
		return c.tree.add(Node{Kind: kind, Value: val}), nil

	case "HEADER":
		field, err := c.operand(key)
		if err != nil {
			return -1, err
		}
		val, err := c.operand(key)
		if err != nil {
			return -1, err
		}
		return c.tree.add(Node{Kind: KindHeader, Field: strings.ToLower(field), Value: c.literal(val)}), nil

	case "BODY", "TEXT":
		val, err := c.operand(key)
		if err != nil {
			return -1, err
		}
		kind := KindBody
		if key == "TEXT" {
			kind = KindText
		}
		return c.tree.add(Node{Kind: kind, Value: c.literal(val)}), nil

	case "CHARSET":
		val, err := c.operand(key)
		if err != nil {
			return -1, err
		}
		return -1, c.setCharset(val)

	case "MODSEQ":
		return c.modseq()

	case "NOT":
		return c.not()

	case "OR":
		left, err := c.operandTerm(key)
		if err != nil {
			return -1, err
		}
		right, err := c.operandTerm(key)
		if err != nil {
			return -1, err
		}
		return c.tree.add(Node{Kind: KindOr, Children: []int{left, right}}), nil

	case "(":
		return c.group()
	}

	if mailbox.IsSetToken(tok) {
		if _, err := mailbox.ParseNumSet(tok); err != nil {
			return -1, syntaxErr(tok, err.Error())
		}
		return c.tree.add(Node{Kind: KindSequenceSet, Value: tok}), nil
	}
	if len(tok) > 0 && strings.ContainsRune("0123456789*:,", rune(tok[0])) {
		return -1, syntaxErr(tok, "invalid set")
	}
	return -1, syntaxErr(tok, "unknown search key")
}

// operandTerm compiles the term operand of NOT or OR. State-only keys are not
// valid operands.
func (c *compiler) operandTerm(key string) (int, error) {
	tok, ok := c.peek()
	if !ok || tok == ")" {
		return -1, syntaxErr(key, "missing operand")
	}
	idx, err := c.term()
	if err != nil {
		return -1, err
	}
	if idx < 0 {
		return -1, syntaxErr(tok, "not a search term")
	}
	return idx, nil
}

// not folds NOT of a single-condition flag into the opposite flag test.
func (c *compiler) not() (int, error) {
	if tok, ok := c.peek(); ok {
		if cond, ok := simpleFlags[strings.ToUpper(tok)]; ok {
			*c.pos++
			cond.Set = !cond.Set
			return c.tree.add(Node{Kind: KindFlag, Flags: []FlagCond{cond}}), nil
		}
	}
	child, err := c.operandTerm("NOT")
	if err != nil {
		return -1, err
	}
	return c.tree.add(Node{Kind: KindNot, Children: []int{child}}), nil
}

// group compiles a parenthesized list into an And node.
func (c *compiler) group() (int, error) {
	idx := c.tree.add(Node{Kind: KindAnd})
	for {
		tok, ok := c.peek()
		if !ok {
			return -1, syntaxErr("(", "unbalanced parentheses")
		}
		if tok == ")" {
			*c.pos++
			break
		}
		child, err := c.term()
		if err != nil {
			return -1, err
		}
		if child >= 0 {
			c.tree.appendChild(idx, child)
		}
	}
	if len(c.tree.Nodes[idx].Children) == 0 {
		return -1, syntaxErr("()", "empty group")
	}
	return idx, nil
}

// modseq records the MODSEQ threshold. The optional entry name and entry type
// are consumed and ignored.
func (c *compiler) modseq() (int, error) {
	val, err := c.operand("MODSEQ")
	if err != nil {
		return -1, err
	}
	n, perr := strconv.ParseUint(val, 10, 64)
	if perr != nil {
		if _, err := c.operand("MODSEQ"); err != nil {
			return -1, err
		}
		if val, err = c.operand("MODSEQ"); err != nil {
			return -1, err
		}
		if n, perr = strconv.ParseUint(val, 10, 64); perr != nil {
			return -1, syntaxErr(val, "invalid mod-sequence")
		}
	}
	c.tree.ModSeq = n
	c.tree.CondStore = true
	return c.tree.add(Node{Kind: KindModSeq, Number: int64(n)}), nil
}

// optionalCharset consumes the charset argument of SORT and THREAD when one is
// present. A non-nil allowed map restricts the accepted names.
func (c *compiler) optionalCharset(allowed map[string]bool) error {
	tok, ok := c.peek()
	if !ok || isSearchKey(tok) {
		return nil
	}
	*c.pos++
	if allowed != nil && !allowed[strings.ToUpper(tok)] {
		return &SyntaxError{Token: tok, Reason: "unknown charset", Err: ErrBadCharset}
	}
	return c.setCharset(tok)
}

func (c *compiler) threadAlgorithm() error {
	tok, ok := c.next()
	if !ok {
		return syntaxErr("", "missing thread algorithm")
	}
	switch alg := ThreadAlgorithm(strings.ToUpper(tok)); alg {
	case ThreadOrderedSubject, ThreadReferences:
		c.tree.Algorithm = alg
		return nil
	}
	return syntaxErr(tok, "unknown thread algorithm")
}

// sortCriteria compiles "[(] [REVERSE] key ... [)]" into a Sort node.
func (c *compiler) sortCriteria() error {
	paren := false
	if tok, ok := c.peek(); ok && tok == "(" {
		paren = true
		*c.pos++
	}

	var chain SortChain
	reverse := false
	for {
		tok, ok := c.peek()
		if !ok {
			if paren {
				return syntaxErr("(", "unbalanced parentheses")
			}
			break
		}
		if tok == ")" && paren {
			*c.pos++
			break
		}
		up := strings.ToUpper(tok)
		if up == "REVERSE" {
			if reverse {
				return syntaxErr(tok, "repeated REVERSE")
			}
			reverse = true
			*c.pos++
			continue
		}
		field, known := sortFields[up]
		if !known {
			if paren || reverse || len(chain) == 0 {
				return syntaxErr(tok, "unknown sort key")
			}
			break
		}
		*c.pos++
		chain = append(chain, SortKey{Field: field, Reverse: reverse})
		reverse = false
	}

	if reverse {
		return syntaxErr("REVERSE", "missing sort key")
	}
	if len(chain) == 0 {
		return syntaxErr("", "empty sort criteria")
	}
	c.tree.appendChild(root, c.tree.add(Node{Kind: KindSort, Sort: chain}))
	return nil
}

func parseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
