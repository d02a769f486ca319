package ecm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// shouldEscape reports whether b cannot appear verbatim in a path segment.
func shouldEscape(b byte) bool {
	switch b {
	case '%', '/', ':', '[', ']', '*', '|', '"', '\t', '\r', '\n':
		return true
	}
	return false
}

// EscapeName converts a raw node name into a path segment. Reserved bytes are
// percent-encoded, as are the whole names "." and "..".
func EscapeName(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty name", ErrEncoding)
	}
	if raw == "." || raw == ".." {
		return strings.Repeat("%2E", len(raw)), nil
	}

	var sb strings.Builder
	sb.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if shouldEscape(b) {
			sb.WriteByte('%')
			sb.WriteByte(upperhex[b>>4])
			sb.WriteByte(upperhex[b&0x0f])
			continue
		}
		sb.WriteByte(b)
	}
	return sb.String(), nil
}

// UnescapeName is the exact inverse of EscapeName.
func UnescapeName(segment string) (string, error) {
	if segment == "" {
		return "", fmt.Errorf("%w: empty segment", ErrEncoding)
	}
	if !strings.Contains(segment, "%") {
		return segment, nil
	}

	var sb strings.Builder
	sb.Grow(len(segment))
	for i := 0; i < len(segment); i++ {
		b := segment[i]
		if b != '%' {
			sb.WriteByte(b)
			continue
		}
		if i+2 >= len(segment) {
			return "", fmt.Errorf("%w: truncated escape in %q", ErrEncoding, segment)
		}
		hi, ok1 := unhex(segment[i+1])
		lo, ok2 := unhex(segment[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("%w: bad escape %q in %q", ErrEncoding, segment[i:i+3], segment)
		}
		sb.WriteByte(hi<<4 | lo)
		i += 2
	}
	return sb.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// CleanPath normalises p to a leading slash with no trailing or empty segments.
func CleanPath(p string) string {
	parts := strings.Split(p, "/")
	segs := parts[:0]
	for _, s := range parts {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return RootPath + strings.Join(segs, "/")
}

// JoinPath appends an already escaped segment to parent.
func JoinPath(parent, segment string) string {
	parent = CleanPath(parent)
	if parent == RootPath {
		return RootPath + segment
	}
	return parent + "/" + segment
}

// SplitParent splits an absolute path into its parent path and last segment.
// The root has no parent: SplitParent("/") returns ("", "").
func SplitParent(p string) (parent, name string) {
	p = CleanPath(p)
	if p == RootPath {
		return "", ""
	}
	i := strings.LastIndexByte(p, '/')
	if i == 0 {
		return RootPath, p[1:]
	}
	return p[:i], p[i+1:]
}

// Segments returns the escaped segments of p.
func Segments(p string) []string {
	p = CleanPath(p)
	if p == RootPath {
		return nil
	}
	return strings.Split(p[1:], "/")
}

// IsDescendant reports whether p lies strictly below ancestor.
func IsDescendant(p, ancestor string) bool {
	p, ancestor = CleanPath(p), CleanPath(ancestor)
	if ancestor == RootPath {
		return p != RootPath
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// FindByPath looks a node up by path. A missing node is reported through the
// boolean, not as an error; only store failures return an error.
func FindByPath(ctx context.Context, sess Session, p string) (*Node, bool, error) {
	node, err := sess.GetNode(ctx, CleanPath(p))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return node, true, nil
}
