package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/jonathan/picoscan/internal/logger"
)

const (
	// DefaultMinRunLength is the shortest printable run kept from binary files
	DefaultMinRunLength = 4
	// DefaultMaxBinaryBytes caps how much of a binary file is mined for strings
	DefaultMaxBinaryBytes = 2_000_000
	// ManifestName is always included regardless of the extension filter
	ManifestName = "AndroidManifest.xml"
)

// Options controls corpus construction
type Options struct {
	Extensions     []string // file suffixes to include; empty means every file
	SkipDirs       []string // directory base names never descended into
	MinRunLength   int
	MaxBinaryBytes int64
	Logger         hclog.Logger
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		SkipDirs:       []string{".git", "original", "build"},
		MinRunLength:   DefaultMinRunLength,
		MaxBinaryBytes: DefaultMaxBinaryBytes,
	}
}

// Corpus is the immutable text index of one application tree. It is safe for
// concurrent readers once Build returns.
type Corpus struct {
	root    string
	entries []*Entry
	byPath  map[string]*Entry
	errors  []*IOError
	bytes   int64
}

// Build walks root and decodes every file into a corpus entry. Unreadable files
// are logged and recorded as IOErrors; only an unusable root or a cancelled
// context fails the build. Cancellation is observed between files.
func Build(ctx context.Context, root string, opts Options) (*Corpus, error) {
	opts = withDefaults(opts)

	info, err := os.Stat(root)
	if err != nil {
		return nil, &IOError{Path: root, Message: "cannot stat corpus root", Cause: err}
	}
	if !info.IsDir() {
		return nil, &IOError{Path: root, Message: "corpus root is not a directory"}
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, &IOError{Path: root, Message: "cannot resolve corpus root", Cause: err}
	}

	b := &builder{
		opts:    opts,
		log:     logger.OrNull(opts.Logger),
		visited: map[string]bool{realRoot: true},
		corpus:  &Corpus{root: root, byPath: make(map[string]*Entry)},
	}
	if err := b.walkDir(ctx, root, ""); err != nil {
		return nil, err
	}

	c := b.corpus
	sort.Slice(c.entries, func(i, j int) bool { return c.entries[i].Path < c.entries[j].Path })
	b.log.Debug("corpus built", "root", root, "files", len(c.entries), "bytes", c.bytes, "errors", len(c.errors))
	return c, nil
}

// FromTexts builds an in-memory corpus from path to text pairs. Text is
// normalized the same way file content is.
func FromTexts(texts map[string]string) *Corpus {
	c := &Corpus{byPath: make(map[string]*Entry, len(texts))}
	for p, text := range texts {
		c.add(newEntry(filepath.ToSlash(p), normalizeNewlines(text), EncodingText))
	}
	sort.Slice(c.entries, func(i, j int) bool { return c.entries[i].Path < c.entries[j].Path })
	return c
}

// Root returns the directory the corpus was built from.
func (c *Corpus) Root() string { return c.root }

// Len returns the number of entries.
func (c *Corpus) Len() int { return len(c.entries) }

// Bytes returns the total size of decoded text.
func (c *Corpus) Bytes() int64 { return c.bytes }

// Entries returns the entries ordered by path. The entries must not be modified.
func (c *Corpus) Entries() []*Entry {
	out := make([]*Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Entry looks up an entry by its slash-separated relative path.
func (c *Corpus) Entry(p string) (*Entry, bool) {
	e, ok := c.byPath[p]
	return e, ok
}

// Errors returns the file-level failures encountered while building.
func (c *Corpus) Errors() []*IOError {
	out := make([]*IOError, len(c.errors))
	copy(out, c.errors)
	return out
}

func (c *Corpus) add(e *Entry) {
	c.entries = append(c.entries, e)
	c.byPath[e.Path] = e
	c.bytes += int64(len(e.Text))
}

type builder struct {
	opts    Options
	log     hclog.Logger
	visited map[string]bool // real paths of directories already descended
	corpus  *Corpus
}

func (b *builder) walkDir(ctx context.Context, absDir, relDir string) error {
	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		b.fail(&IOError{Path: displayPath(relDir), Message: "cannot read directory", Cause: err})
		return nil
	}

	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("corpus build cancelled: %w", err)
		}

		abs := filepath.Join(absDir, de.Name())
		rel := path.Join(relDir, de.Name())

		mode := de.Type()
		if mode&fs.ModeSymlink != 0 {
			if err := b.visitSymlink(ctx, abs, rel); err != nil {
				return err
			}
			continue
		}

		switch {
		case mode.IsDir():
			if err := b.descend(ctx, abs, rel); err != nil {
				return err
			}
		case mode.IsRegular():
			b.visitFile(abs, rel)
		}
	}
	return nil
}

func (b *builder) visitSymlink(ctx context.Context, abs, rel string) error {
	target, err := filepath.EvalSymlinks(abs)
	if err != nil {
		b.fail(&IOError{Path: rel, Message: "cannot resolve symbolic link", Cause: err})
		return nil
	}
	info, err := os.Stat(target)
	if err != nil {
		b.fail(&IOError{Path: rel, Message: "cannot stat symbolic link target", Cause: err})
		return nil
	}
	if info.IsDir() {
		return b.descend(ctx, abs, rel)
	}
	if info.Mode().IsRegular() {
		b.visitFile(abs, rel)
	}
	return nil
}

func (b *builder) descend(ctx context.Context, abs, rel string) error {
	if b.skipDir(path.Base(rel)) {
		return nil
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		b.fail(&IOError{Path: rel, Message: "cannot resolve directory", Cause: err})
		return nil
	}
	if b.visited[resolved] {
		b.log.Debug("directory already visited, skipping", "path", rel, "target", resolved)
		return nil
	}
	b.visited[resolved] = true
	return b.walkDir(ctx, abs, rel)
}

func (b *builder) visitFile(abs, rel string) {
	if !b.includeFile(path.Base(rel)) {
		return
	}

	f, err := os.Open(abs)
	if err != nil {
		b.fail(&IOError{Path: rel, Message: "cannot open file", Cause: err})
		return
	}
	defer func() { _ = f.Close() }()

	data, binary, err := readContent(f, b.opts.MaxBinaryBytes)
	if err != nil {
		b.fail(&IOError{Path: rel, Message: "cannot read file", Cause: err})
		return
	}

	var text string
	var enc Encoding
	if binary {
		text, enc = decodeBinary(data, b.opts.MinRunLength, b.opts.MaxBinaryBytes), EncodingStrings
	} else {
		text, enc = decode(data, b.opts.MinRunLength, b.opts.MaxBinaryBytes)
	}
	b.corpus.add(newEntry(rel, text, enc))
	b.log.Trace("file decoded", "path", rel, "encoding", enc, "bytes", len(text))
}

func (b *builder) fail(err *IOError) {
	b.log.Warn("skipping unreadable path", "path", err.Path, "error", err.Cause)
	b.corpus.errors = append(b.corpus.errors, err)
}

func (b *builder) skipDir(name string) bool {
	for _, d := range b.opts.SkipDirs {
		if d == name {
			return true
		}
	}
	return false
}

func (b *builder) includeFile(name string) bool {
	if len(b.opts.Extensions) == 0 || name == ManifestName {
		return true
	}
	for _, ext := range b.opts.Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func withDefaults(opts Options) Options {
	if opts.MinRunLength <= 0 {
		opts.MinRunLength = DefaultMinRunLength
	}
	if opts.MaxBinaryBytes <= 0 {
		opts.MaxBinaryBytes = DefaultMaxBinaryBytes
	}
	return opts
}

func displayPath(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}
