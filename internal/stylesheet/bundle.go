// Package stylesheet bundles CSS entry files, records the references they make
// to other assets, and rewrites those references to published paths.
package stylesheet

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tdewolff/minify/v2"
	mincss "github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// placeholderPrefix starts every placeholder token inserted into bundled text.
const placeholderPrefix = "__assetforge_dep_"

// DependencyKind tells where a reference was found.
type DependencyKind string

const (
	DepURL    DependencyKind = "url"
	DepImport DependencyKind = "import"
)

// Dependency is one reference left in a bundle for later resolution.
type Dependency struct {
	Placeholder string         // Unique token standing in for the reference in Bundle.Text
	File        string         // Logical key of the stylesheet that contains the reference
	URL         string         // Literal reference text
	Kind        DependencyKind
}

// Bundle is a stylesheet with its local imports inlined and every other
// reference replaced by a placeholder.
type Bundle struct {
	Entry        string
	Text         []byte
	Dependencies []Dependency
	Files        []string // Logical keys of every file inlined, entry first
}

// Bundler inlines local @import rules below Root.
type Bundler struct {
	Root   string
	Minify bool
}

// NewBundler returns a bundler reading stylesheets below root.
func NewBundler(root string, minify bool) *Bundler {
	return &Bundler{Root: root, Minify: minify}
}

// Bundle inlines entry (a logical key) and everything it imports locally.
func (b *Bundler) Bundle(entry string) (*Bundle, error) {
	st := &bundleState{
		root:       b.Root,
		visited:    make(map[string]bool),
		inlined:    make(map[string]bool),
		inProgress: make(map[string]bool),
	}

	body, err := st.inline(entry, "", "")
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.WriteString(st.charset)
	for _, imp := range st.hoisted {
		out.WriteString(imp)
	}
	out.Write(body)

	text := out.Bytes()
	if b.Minify {
		text, err = minifyCSS(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMinifyFailed, entry, err)
		}
	}

	return &Bundle{
		Entry:        entry,
		Text:         text,
		Dependencies: st.deps,
		Files:        st.files,
	}, nil
}

type token struct {
	tt   css.TokenType
	text string
}

type bundleState struct {
	root       string
	visited    map[string]bool // keyed by file and enclosing media conditions
	inlined    map[string]bool
	inProgress map[string]bool
	stack      []string
	media      []string // media conditions of the @media blocks currently open
	files      []string
	deps       []Dependency
	hoisted    []string
	charset    string
}

// inline returns the body of key with imports resolved. media wraps the body in
// an @media block; scope is the media condition inherited by hoisted imports.
// A file is inlined once per distinct chain of enclosing media conditions.
func (st *bundleState) inline(key, media, scope string) ([]byte, error) {
	if st.inProgress[key] {
		chain := append(append([]string{}, st.stack...), key)
		return nil, fmt.Errorf("%w: %s", ErrImportCycle, strings.Join(chain, " -> "))
	}
	if media != "" {
		st.media = append(st.media, media)
		defer func() { st.media = st.media[:len(st.media)-1] }()
	}
	visitKey := key + "\x00" + strings.Join(st.media, "\x00")
	if st.visited[visitKey] {
		return nil, nil
	}

	data, err := os.ReadFile(filepath.Join(st.root, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadFailed, key, err)
	}

	st.inProgress[key] = true
	st.stack = append(st.stack, key)
	defer func() {
		delete(st.inProgress, key)
		st.stack = st.stack[:len(st.stack)-1]
	}()
	if !st.inlined[key] {
		st.inlined[key] = true
		st.files = append(st.files, key)
	}
	isEntry := len(st.stack) == 1
	if media != "" {
		scope = media
	}

	var out bytes.Buffer
	l := css.NewLexer(parse.NewInputBytes(data))
lex:
	for {
		tt, text := l.Next()
		switch tt {
		case css.ErrorToken:
			if lerr := l.Err(); lerr != nil && lerr != io.EOF {
				return nil, fmt.Errorf("%w: %s: %w", ErrReadFailed, key, lerr)
			}
			break lex
		case css.AtKeywordToken:
			switch strings.ToLower(string(text)) {
			case "@charset":
				rule := collectRule(l)
				if isEntry && st.charset == "" {
					st.charset = "@charset " + strings.TrimSpace(joinTokens(rule)) + ";"
				}
			case "@import":
				if err := st.handleImport(key, collectRule(l), scope, &out); err != nil {
					return nil, err
				}
			default:
				out.Write(text)
			}
		case css.URLToken:
			st.writeURL(key, string(text), &out)
		case css.FunctionToken:
			out.Write(text)
			if isImageSet(string(text)) {
				st.imageSet(key, l, &out)
			}
		default:
			out.Write(text)
		}
	}

	st.visited[visitKey] = true
	if media == "" {
		return out.Bytes(), nil
	}
	wrapped := make([]byte, 0, out.Len()+len(media)+10)
	wrapped = append(wrapped, "@media "+media+"{"...)
	wrapped = append(wrapped, out.Bytes()...)
	wrapped = append(wrapped, '}')
	return wrapped, nil
}

func (st *bundleState) handleImport(file string, rule []token, scope string, out *bytes.Buffer) error {
	rule = trimWhitespace(rule)
	if len(rule) == 0 {
		return fmt.Errorf("%w: empty @import in %s", ErrMalformedImport, file)
	}

	var target string
	switch rule[0].tt {
	case css.StringToken:
		target = unquote(rule[0].text)
	case css.URLToken:
		target = urlTokenValue(rule[0].text)
	default:
		return fmt.Errorf("%w: %q in %s", ErrMalformedImport, rule[0].text, file)
	}
	cond := strings.TrimSpace(joinTokens(rule[1:]))

	if isInlinable(target, cond) {
		key, _, err := ResolveKey(file, target)
		if err != nil {
			return err
		}
		body, err := st.inline(key, cond, scope)
		if err != nil {
			return err
		}
		out.Write(body)
		return nil
	}

	if cond == "" {
		cond = scope
	}
	imp := "@import url(" + st.addDependency(file, target, DepImport) + ")"
	if cond != "" {
		imp += " " + cond
	}
	st.hoisted = append(st.hoisted, imp+";")
	return nil
}

// writeURL writes a url() token, replacing a local or remote reference with a
// placeholder.
func (st *bundleState) writeURL(file, text string, out *bytes.Buffer) {
	ref := urlTokenValue(text)
	if isPassThrough(ref) {
		out.WriteString(text)
		return
	}
	out.WriteString("url(" + st.addDependency(file, ref, DepURL) + ")")
}

// imageSet consumes the arguments of an image-set() call up to its closing
// parenthesis. Top-level string arguments are image references and become
// url() placeholders; strings nested in other functions, such as type(), are
// kept.
func (st *bundleState) imageSet(file string, l *css.Lexer, out *bytes.Buffer) {
	depth := 1
	for depth > 0 {
		tt, text := l.Next()
		switch tt {
		case css.ErrorToken:
			return
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
			out.Write(text)
		case css.RightParenthesisToken:
			depth--
			out.Write(text)
		case css.URLToken:
			st.writeURL(file, string(text), out)
		case css.StringToken:
			ref := unquote(string(text))
			if depth > 1 || isPassThrough(ref) {
				out.Write(text)
				continue
			}
			out.WriteString("url(" + st.addDependency(file, ref, DepURL) + ")")
		default:
			out.Write(text)
		}
	}
}

func isImageSet(fn string) bool {
	switch strings.ToLower(fn) {
	case "image-set(", "-webkit-image-set(":
		return true
	}
	return false
}

func (st *bundleState) addDependency(file, ref string, kind DependencyKind) string {
	ph := placeholderPrefix + strconv.Itoa(len(st.deps)) + "__"
	st.deps = append(st.deps, Dependency{Placeholder: ph, File: file, URL: ref, Kind: kind})
	return ph
}

// isInlinable reports whether an @import can be replaced by the target's contents:
// a local stylesheet under at most a media condition. Layer and supports conditions
// have no flattened equivalent and stay as @import.
func isInlinable(target, cond string) bool {
	if IsExternal(target) || isPassThrough(target) {
		return false
	}
	p, _ := SplitSuffix(target)
	if strings.ToLower(path.Ext(p)) != ".css" {
		return false
	}
	lower := strings.ToLower(cond)
	return !strings.HasPrefix(lower, "layer") && !strings.HasPrefix(lower, "supports(")
}

// collectRule consumes tokens up to and including the terminating semicolon.
func collectRule(l *css.Lexer) []token {
	var toks []token
	for {
		tt, text := l.Next()
		if tt == css.ErrorToken || tt == css.SemicolonToken {
			return toks
		}
		toks = append(toks, token{tt: tt, text: string(text)})
	}
}

func trimWhitespace(toks []token) []token {
	for len(toks) > 0 && toks[0].tt == css.WhitespaceToken {
		toks = toks[1:]
	}
	for len(toks) > 0 && toks[len(toks)-1].tt == css.WhitespaceToken {
		toks = toks[:len(toks)-1]
	}
	return toks
}

func joinTokens(toks []token) string {
	var sb strings.Builder
	for _, t := range toks {
		if t.tt == css.WhitespaceToken {
			sb.WriteByte(' ')
			continue
		}
		sb.WriteString(t.text)
	}
	return sb.String()
}

// urlTokenValue extracts the reference from a url(...) token, quoted or not.
func urlTokenValue(text string) string {
	open := strings.IndexByte(text, '(')
	if open < 0 {
		return ""
	}
	end := strings.LastIndexByte(text, ')')
	if end <= open {
		end = len(text)
	}
	return unquote(strings.TrimSpace(text[open+1 : end]))
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func minifyCSS(text []byte) ([]byte, error) {
	m := minify.New()
	m.AddFunc("text/css", mincss.Minify)
	return m.Bytes("text/css", text)
}
