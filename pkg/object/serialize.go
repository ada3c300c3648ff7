package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// MarshalTree serializes a TreeObj. Entries are sorted by Name for
// deterministic output. Each entry is one line:
//
//	name mode blobhash subtreehash
//
// Empty hashes are written as "-". Names may contain spaces, so the name is
// the last field to be split off.
func MarshalTree(tr *TreeObj) []byte {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		fmt.Fprintf(&buf, "%s %s %s %s\n", treeModeOrDefault(e), hashOrDash(e.BlobHash), hashOrDash(e.SubtreeHash), e.Name)
	}
	return buf.Bytes()
}

func hashOrDash(h Hash) string {
	if h == "" {
		return "-"
	}
	return string(h)
}

func dashOrHash(s string) Hash {
	if s == "-" {
		return Hash("")
	}
	return Hash(s)
}

// UnmarshalTree parses a TreeObj from its serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return tr, nil
	}
	for _, line := range strings.Split(text, "\n") {
		parts := strings.SplitN(line, " ", 4)
		if len(parts) != 4 || parts[3] == "" {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		isDir, mode, err := parseTreeMode(parts[0])
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		tr.Entries = append(tr.Entries, TreeEntry{
			Name:        parts[3],
			IsDir:       isDir,
			Mode:        mode,
			BlobHash:    dashOrHash(parts[1]),
			SubtreeHash: dashOrHash(parts[2]),
		})
	}
	return tr, nil
}

func treeModeOrDefault(e TreeEntry) string {
	if e.IsDir {
		return TreeModeDir
	}
	if strings.TrimSpace(e.Mode) == "" {
		return TreeModeFile
	}
	return e.Mode
}

func parseTreeMode(mode string) (bool, string, error) {
	switch mode {
	case TreeModeDir:
		return true, TreeModeDir, nil
	case TreeModeFile:
		return false, TreeModeFile, nil
	case TreeModeExecutable:
		return false, TreeModeExecutable, nil
	default:
		return false, "", fmt.Errorf("unknown mode %q", mode)
	}
}

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H       (zero or more)
//	author Name <email> 1700000000 +0100
//	committer Name <email> 1700000000 +0100
//	signature S    (optional)
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.TreeHash))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	fmt.Fprintf(&buf, "author %s\n", formatSignature(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", formatSignature(c.Committer))
	if strings.TrimSpace(c.Signature) != "" {
		fmt.Fprintf(&buf, "signature %s\n", c.Signature)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &CommitObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			sig, err := parseSignature(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: author: %w", err)
			}
			c.Author = sig
		case "committer":
			sig, err := parseSignature(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: committer: %w", err)
			}
			c.Committer = sig
		case "signature":
			c.Signature = val
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	return c, nil
}

func formatSignature(s Signature) string {
	sign := '+'
	off := s.TZOffset
	if off < 0 {
		sign = '-'
		off = -off
	}
	return fmt.Sprintf("%s %d %c%02d%02d", s.Identity(), s.When, sign, off/60, off%60)
}

// parseSignature reverses formatSignature. The identity may contain spaces,
// so the timestamp and zone are split from the right.
func parseSignature(s string) (Signature, error) {
	zoneIdx := strings.LastIndexByte(s, ' ')
	if zoneIdx < 0 {
		return Signature{}, fmt.Errorf("malformed signature %q", s)
	}
	zone := s[zoneIdx+1:]
	rest := s[:zoneIdx]
	whenIdx := strings.LastIndexByte(rest, ' ')
	if whenIdx < 0 {
		return Signature{}, fmt.Errorf("malformed signature %q", s)
	}
	when, err := strconv.ParseInt(rest[whenIdx+1:], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("bad timestamp in %q: %w", s, err)
	}
	if len(zone) != 5 || (zone[0] != '+' && zone[0] != '-') {
		return Signature{}, fmt.Errorf("bad timezone %q", zone)
	}
	hh, err := strconv.Atoi(zone[1:3])
	if err != nil {
		return Signature{}, fmt.Errorf("bad timezone %q: %w", zone, err)
	}
	mm, err := strconv.Atoi(zone[3:5])
	if err != nil {
		return Signature{}, fmt.Errorf("bad timezone %q: %w", zone, err)
	}
	off := hh*60 + mm
	if zone[0] == '-' {
		off = -off
	}

	sig := Signature{When: when, TZOffset: off}
	ident := rest[:whenIdx]
	if lt := strings.LastIndexByte(ident, '<'); lt >= 0 && strings.HasSuffix(ident, ">") {
		sig.Name = strings.TrimSpace(ident[:lt])
		sig.Email = ident[lt+1 : len(ident)-1]
	} else {
		sig.Name = ident
	}
	return sig, nil
}
