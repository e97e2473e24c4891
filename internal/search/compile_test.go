package search

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestCompileInitialSet(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		initial string
		kinds   []Kind
	}{
		{"catch-all", []string{"SEEN"}, "1:*", []Kind{KindSequenceSet, KindFlag}},
		{"leading set", []string{"2:4", "SEEN"}, "2:4", []Kind{KindSequenceSet, KindFlag}},
		{"ALL", []string{"ALL"}, "1:*", []Kind{KindSequenceSet, KindUIDSet}},
		{"no keys", nil, "1:*", []Kind{KindSequenceSet}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := compileSearch(t, tt.tokens...)
			root := tree.Root()
			if root.Kind != KindAnd {
				t.Fatalf("root kind = %v, want AND", root.Kind)
			}
			var kinds []Kind
			for _, c := range root.Children {
				kinds = append(kinds, tree.Nodes[c].Kind)
			}
			if diff := cmp.Diff(tt.kinds, kinds); diff != "" {
				t.Errorf("root children mismatch (-want +got):\n%s", diff)
			}
			if got := tree.Nodes[root.Children[0]].Value; got != tt.initial {
				t.Errorf("initial set = %q, want %q", got, tt.initial)
			}
		})
	}
}

func TestCompileCursor(t *testing.T) {
	tokens := []string{"A001", "UID", "SEARCH", "FROM", "alice", "UNSEEN"}
	cursor := 3
	if _, err := Compile(tokens, &cursor, ModeSearch); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if cursor != len(tokens) {
		t.Errorf("cursor = %d, want %d", cursor, len(tokens))
	}
}

func TestCompileNot(t *testing.T) {
	t.Run("folds single flag", func(t *testing.T) {
		tree := compileSearch(t, "NOT", "SEEN")
		n := tree.Nodes[tree.Root().Children[1]]
		if n.Kind != KindFlag {
			t.Fatalf("kind = %v, want FLAG", n.Kind)
		}
		want := []FlagCond{{FlagSeen, false}}
		if diff := cmp.Diff(want, n.Flags); diff != "" {
			t.Errorf("flags mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("double negation of flag", func(t *testing.T) {
		tree := compileSearch(t, "NOT", "UNFLAGGED")
		n := tree.Nodes[tree.Root().Children[1]]
		want := []FlagCond{{FlagFlagged, true}}
		if diff := cmp.Diff(want, n.Flags); diff != "" {
			t.Errorf("flags mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("NEW is not folded", func(t *testing.T) {
		tree := compileSearch(t, "NOT", "NEW")
		n := tree.Nodes[tree.Root().Children[1]]
		if n.Kind != KindNot {
			t.Fatalf("kind = %v, want NOT", n.Kind)
		}
		if child := tree.Nodes[n.Children[0]]; len(child.Flags) != 2 {
			t.Errorf("NEW has %d flag conditions, want 2", len(child.Flags))
		}
	})

	t.Run("header", func(t *testing.T) {
		tree := compileSearch(t, "NOT", "FROM", "alice")
		n := tree.Nodes[tree.Root().Children[1]]
		if n.Kind != KindNot {
			t.Fatalf("kind = %v, want NOT", n.Kind)
		}
		child := tree.Nodes[n.Children[0]]
		if child.Kind != KindHeader || child.Field != "from" || child.Value != "alice" {
			t.Errorf("child = %v %q %q, want HEADER from alice", child.Kind, child.Field, child.Value)
		}
	})
}

func TestCompileOrAndGroups(t *testing.T) {
	tree := compileSearch(t, "OR", "FROM", "carol", "(", "SUBJECT", "lunch", "SEEN", ")")
	or := tree.Nodes[tree.Root().Children[1]]
	if or.Kind != KindOr || len(or.Children) != 2 {
		t.Fatalf("got %v with %d children, want OR with 2", or.Kind, len(or.Children))
	}
	group := tree.Nodes[or.Children[1]]
	if group.Kind != KindAnd || len(group.Children) != 2 {
		t.Errorf("got %v with %d children, want AND with 2", group.Kind, len(group.Children))
	}
}

func TestCompileOperands(t *testing.T) {
	tree := compileSearch(t,
		"HEADER", "X-Mailer", "mutt",
		"SINCE", "1-Feb-2024",
		"LARGER", "1024",
		"KEYWORD", "$Important",
		"UID", "5:*")
	children := tree.Root().Children

	header := tree.Nodes[children[1]]
	if header.Field != "x-mailer" || header.Value != "mutt" {
		t.Errorf("header = %q %q, want x-mailer mutt", header.Field, header.Value)
	}
	since := tree.Nodes[children[2]]
	if want := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC); !since.Date.Equal(want) {
		t.Errorf("since = %v, want %v", since.Date, want)
	}
	if larger := tree.Nodes[children[3]]; larger.Kind != KindSizeLarger || larger.Number != 1024 {
		t.Errorf("larger = %v %d, want LARGER 1024", larger.Kind, larger.Number)
	}
	if kw := tree.Nodes[children[4]]; kw.Kind != KindKeyword || kw.Value != "$Important" {
		t.Errorf("keyword = %v %q", kw.Kind, kw.Value)
	}
	if uid := tree.Nodes[children[5]]; uid.Kind != KindUIDSet || uid.Value != "5:*" {
		t.Errorf("uid = %v %q", uid.Kind, uid.Value)
	}
}

func TestCompileCharset(t *testing.T) {
	tree := compileSearch(t, "CHARSET", "ISO-8859-1", "SUBJECT", "caf\xe9")
	if tree.Charset != "ISO-8859-1" {
		t.Errorf("charset = %q, want ISO-8859-1", tree.Charset)
	}
	subject := tree.Nodes[tree.Root().Children[1]]
	if subject.Value != "café" {
		t.Errorf("subject = %q, want café", subject.Value)
	}

	cursor := 0
	_, err := Compile([]string{"CHARSET", "X-NO-SUCH-CHARSET", "SEEN"}, &cursor, ModeSearch)
	if !errors.Is(err, ErrBadCharset) {
		t.Errorf("unknown charset error = %v, want ErrBadCharset", err)
	}
}

func TestCompileModSeq(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   uint64
	}{
		{"plain", []string{"MODSEQ", "5"}, 5},
		{"entry", []string{"MODSEQ", `/flags/\draft`, "all", "7"}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := compileSearch(t, tt.tokens...)
			if !tree.CondStore || tree.ModSeq != tt.want {
				t.Errorf("condstore = %v modseq = %d, want true %d", tree.CondStore, tree.ModSeq, tt.want)
			}
		})
	}
}

func TestCompileSyntaxErrors(t *testing.T) {
	tests := [][]string{
		{"FOO"},
		{"("},
		{"(", ")"},
		{")"},
		{"SEEN", ")"},
		{"FROM"},
		{"OR", "SEEN"},
		{"NOT"},
		{"NOT", "CHARSET", "UTF-8"},
		{"BEFORE", "32-Jan-2024"},
		{"LARGER", "-1"},
		{"LARGER", "abc"},
		{"UID", "0"},
		{"UID", "1:2:3"},
		{"0"},
		{"1,,2"},
		{"MODSEQ", "abc"},
	}

	for _, tokens := range tests {
		cursor := 0
		_, err := Compile(tokens, &cursor, ModeSearch)
		var syn *SyntaxError
		if !errors.As(err, &syn) {
			t.Errorf("Compile(%q) error = %v, want SyntaxError", tokens, err)
		}
	}
}

func TestCompileSort(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   string
		rest   int
	}{
		{"parenthesized", []string{"(", "REVERSE", "DATE", "SUBJECT", ")", "UTF-8", "ALL"}, "(REVERSE DATE SUBJECT)", 2},
		{"bare", []string{"ARRIVAL", "UTF-8", "SEEN"}, "(ARRIVAL)", 2},
		{"no charset", []string{"(", "SIZE", ")", "1:3"}, "(SIZE)", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor := 0
			tree, err := Compile(tt.tokens, &cursor, ModeSort)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			if got := tree.SortChain().String(); got != tt.want {
				t.Errorf("chain = %s, want %s", got, tt.want)
			}
			if cursor != len(tt.tokens) {
				t.Errorf("cursor = %d, want %d", cursor, len(tt.tokens))
			}
			if n := len(tree.Root().Children); n != tt.rest+1 {
				t.Errorf("root has %d children, want %d", n, tt.rest+1)
			}
			if first := tree.Nodes[tree.Root().Children[0]]; first.Kind != KindSequenceSet {
				t.Errorf("first child = %v, want the initial set", first.Kind)
			}
		})
	}
}

func TestCompileSortErrors(t *testing.T) {
	tests := [][]string{
		{"REVERSE"},
		{"(", "ARRIVAL"},
		{"(", ")", "UTF-8", "ALL"},
		{"(", "ARRIVAL", "FOO", ")"},
		{"(", "REVERSE", "REVERSE", "ARRIVAL", ")"},
		{"FOO", "UTF-8", "ALL"},
		{"(", "ARRIVAL", "REVERSE", ")"},
	}
	for _, tokens := range tests {
		cursor := 0
		if _, err := Compile(tokens, &cursor, ModeSort); err == nil {
			t.Errorf("Compile(%q) succeeded, want error", tokens)
		}
	}
}

func TestCompileThread(t *testing.T) {
	cursor := 0
	tree, err := Compile([]string{"REFERENCES", "US-ASCII", "SEEN"}, &cursor, ModeThread)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if tree.Algorithm != ThreadReferences {
		t.Errorf("algorithm = %s, want REFERENCES", tree.Algorithm)
	}

	cursor = 0
	if _, err := Compile([]string{"BYDATE", "UTF-8", "ALL"}, &cursor, ModeThread); err == nil {
		t.Error("unknown algorithm accepted")
	}

	cursor = 0
	_, err = Compile([]string{"ORDEREDSUBJECT", "KOI8-R", "ALL"}, &cursor, ModeThread)
	if !errors.Is(err, ErrBadCharset) {
		t.Errorf("thread charset error = %v, want ErrBadCharset", err)
	}
}
