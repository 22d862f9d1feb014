// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package vocab implements the translation vocabularies: the mapping between whitespace separated
// tokens and the ids consumed and produced by the inference modules.
//
// The first ids are reserved (PAD, GO, EOS and UNK), and the tokens read from a vocabulary file
// are numbered from NumReserved on, in file order.
//
// Vocabulary files have one token per line, optionally followed by whitespace and a count, which
// is ignored. Empty lines are skipped.
package vocab

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/florischabert/translate/pkg/support/fsutil"
)

// Reserved token ids.
const (
	PAD = iota
	GO
	EOS
	UNK
	NumReserved
)

var reservedSymbols = [NumReserved]string{"<PAD>", "<GO>", "<EOS>", "<UNK>"}

// Dictionary maps tokens to ids and back. It is immutable after creation and can be used concurrently.
type Dictionary struct {
	tokens []string
	ids    map[string]int
}

// New creates a Dictionary with the reserved ids followed by the given tokens.
// Tokens that are repeated or that are reserved symbols are ignored.
func New(tokens ...string) *Dictionary {
	d := &Dictionary{
		tokens: make([]string, 0, NumReserved+len(tokens)),
		ids:    make(map[string]int, NumReserved+len(tokens)),
	}
	for _, symbol := range reservedSymbols {
		d.add(symbol)
	}
	for _, token := range tokens {
		d.add(token)
	}
	return d
}

// add token if not yet present. It returns false if it was already in the dictionary.
func (d *Dictionary) add(token string) bool {
	if _, found := d.ids[token]; found {
		return false
	}
	d.ids[token] = len(d.tokens)
	d.tokens = append(d.tokens, token)
	return true
}

// Read a dictionary from a vocabulary file contents.
func Read(r io.Reader) (*Dictionary, error) {
	d := New()
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) > 2 {
			return nil, errors.Errorf("vocabulary line %d: expected \"<token> [<count>]\", got %q", lineNum, scanner.Text())
		}
		if !d.add(fields[0]) {
			klog.Warningf("vocabulary line %d: token %q is repeated or reserved, ignored", lineNum, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading vocabulary")
	}
	return d, nil
}

// Build a dictionary from the tokens of a corpus, one sentence per line, ordered by decreasing
// frequency (ties in order of first occurrence). If maxTokens > 0, only the maxTokens most frequent
// tokens are kept.
func Build(r io.Reader, maxTokens int) (*Dictionary, error) {
	counts := make(map[string]int)
	var order []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		for _, token := range strings.Fields(scanner.Text()) {
			if counts[token] == 0 {
				order = append(order, token)
			}
			counts[token]++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading corpus")
	}
	slices.SortStableFunc(order, func(a, b string) int { return cmp.Compare(counts[b], counts[a]) })
	if maxTokens > 0 && len(order) > maxTokens {
		order = order[:maxTokens]
	}
	return New(order...), nil
}

// Load a dictionary from the vocabulary file in filePath. A leading "~" is expanded to the home directory.
func Load(filePath string) (*Dictionary, error) {
	filePath, err := fsutil.ExpandHome(filePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open vocabulary file")
	}
	defer func() { _ = f.Close() }()
	d, err := Read(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "vocabulary file %q", filePath)
	}
	klog.V(1).Infof("loaded vocabulary %q: %d tokens", filePath, d.Len())
	return d, nil
}

// Write the dictionary tokens (excluding the reserved ones) in the vocabulary file format.
func (d *Dictionary) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, token := range d.tokens[NumReserved:] {
		if _, err := fmt.Fprintln(bw, token); err != nil {
			return errors.Wrap(err, "writing vocabulary")
		}
	}
	return errors.Wrap(bw.Flush(), "writing vocabulary")
}

// Save the dictionary in the vocabulary file format to filePath.
func (d *Dictionary) Save(filePath string) error {
	f, err := fsutil.CreateFile(filePath)
	if err != nil {
		return err
	}
	if err := d.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "failed to close vocabulary file %q", filePath)
}

// Len returns the number of ids, including the reserved ones.
func (d *Dictionary) Len() int { return len(d.tokens) }

// ID returns the id of token, or UNK if it is not in the dictionary.
func (d *Dictionary) ID(token string) int {
	if id, found := d.ids[token]; found {
		return id
	}
	return UNK
}

// Token returns the token for the given id. Out of range ids are rendered as the UNK symbol.
func (d *Dictionary) Token(id int) string {
	if id < 0 || id >= len(d.tokens) {
		return reservedSymbols[UNK]
	}
	return d.tokens[id]
}

// Numberize splits line on whitespace and returns the ids of the tokens.
func (d *Dictionary) Numberize(line string) []int {
	fields := strings.Fields(line)
	ids := make([]int, len(fields))
	for ii, token := range fields {
		ids[ii] = d.ID(token)
	}
	return ids
}

// Denumberize returns the space separated tokens for ids. PAD, GO and EOS are skipped, UNK is
// rendered with its symbol.
func (d *Dictionary) Denumberize(ids []int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < UNK {
			continue
		}
		parts = append(parts, d.Token(id))
	}
	return strings.Join(parts, " ")
}

// String implements fmt.Stringer.
func (d *Dictionary) String() string {
	return fmt.Sprintf("vocab.Dictionary(%d tokens)", d.Len())
}
