package cpmp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tanaka-lab/cpmp/pkg/collections"
)

// ParseFile loads a Problem from a premarshalling instance file, path.
func ParseFile(path string) (*Problem, error) {
	return ParseFileFormat(path, "auto")
}

// ParseFileFormat loads a Problem from path using the named format; see
// ParseReaderFormat.
func ParseFileFormat(path, format string) (*Problem, error) {
	return ParseFileOptions(path, format, ParseOptions{})
}

// ParseFileOptions loads a Problem from path with explicit dimension
// overrides; see ParseReaderOptions.
func ParseFileOptions(path, format string, opts ParseOptions) (*Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseReaderOptions(f, format, opts)
}

// ParseOptions overrides dimensions parsed from the instance text,
// mirroring the reference tool's command-line switches.
type ParseOptions struct {
	// NumStack pads the yard with empty stacks up to this count. When the
	// input also declares a stack count, the larger of the two wins.
	NumStack int

	// StackHeight overrides the parsed height; again the larger value
	// wins, since shrinking below an occupied tier would be lossy.
	StackHeight int

	// ExtraTiers adds empty tiers on top of the resolved height.
	ExtraTiers int
}

// ParseReader loads a Problem from r. It auto-detects between two input
// formats:
//
//   - format A: an optional "Key: value" header (Tiers/Height sets the
//     stack height, Stacks/Width sets the stack count, Containers is
//     informational) followed by a flat stream of integers: each stack's
//     tier count, then that many priorities from bottom to top, repeated
//     per stack.
//   - format B: one "Stack N: p1 p2 p3 ..." line per stack, priorities
//     listed bottom to top, auto-detected when the first non-blank line
//     after the header starts with "Stack".
func ParseReader(r io.Reader) (*Problem, error) {
	return ParseReaderFormat(r, "auto")
}

// ParseReaderFormat loads a Problem from r using the named format:
// "auto" (detect, the ParseReader default), "a", or "b". An unrecognized
// format name is an error rather than a silent fallback to auto-detect.
func ParseReaderFormat(r io.Reader, format string) (*Problem, error) {
	return ParseReaderOptions(r, format, ParseOptions{})
}

// ParseReaderOptions parses like ParseReaderFormat and then applies opts:
// the stack count and height each resolve to the maximum of the parsed and
// requested values, and ExtraTiers raises the height afterwards.
func ParseReaderOptions(r io.Reader, format string, opts ParseOptions) (*Problem, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	numStack, stackHeight, headerEnd := parseHeader(lines)
	rest := lines[headerEnd:]

	var stacks [][]int
	switch strings.ToLower(format) {
	case "", "auto":
		if formatBLine(rest) {
			stacks, stackHeight, err = parseFormatB(rest, stackHeight)
		} else {
			stacks, stackHeight, err = parseFormatA(rest, numStack, stackHeight)
		}
	case "a":
		stacks, stackHeight, err = parseFormatA(rest, numStack, stackHeight)
	case "b":
		stacks, stackHeight, err = parseFormatB(rest, stackHeight)
	default:
		return nil, fmt.Errorf("unknown input format: %q (valid: auto, a, b)", format)
	}
	if err != nil {
		return nil, err
	}

	want := numStack
	if opts.NumStack > want {
		want = opts.NumStack
	}
	for len(stacks) < want {
		stacks = append(stacks, nil)
	}
	if opts.StackHeight > stackHeight {
		stackHeight = opts.StackHeight
	}
	stackHeight += opts.ExtraTiers

	return NewProblem(stacks, stackHeight)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, stripComment(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return line
}

// parseHeader consumes leading "Key: value" lines and returns the stack
// count / stack height found, plus the index of the first line that is not
// part of the header.
func parseHeader(lines []string) (numStack, stackHeight, idx int) {
	for idx = 0; idx < len(lines); idx++ {
		trimmed := strings.TrimSpace(lines[idx])
		if trimmed == "" {
			continue
		}
		key, val, ok := splitHeaderLine(trimmed)
		if !ok {
			break
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			break
		}
		switch strings.ToLower(key) {
		case "tiers", "height":
			stackHeight = n
		case "stacks", "width":
			if n > numStack {
				numStack = n
			}
		case "containers":
			// informational only
		default:
			goto done
		}
	}
done:
	return numStack, stackHeight, idx
}

func splitHeaderLine(line string) (key, val string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	return line[:i], line[i+1:], true
}

func formatBLine(lines []string) bool {
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		return strings.HasPrefix(t, "Stack ") || strings.HasPrefix(t, "Stack:")
	}
	return false
}

func parseFormatB(lines []string, stackHeight int) ([][]int, int, error) {
	var stacks [][]int
	seen := collections.NewBitset(64)
	next := 0
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "Stack") {
			continue
		}
		i := strings.IndexByte(t, ':')
		if i < 0 {
			continue
		}

		// "Stack N:" lines may appear out of order; the label decides
		// where the contents land. An unlabeled "Stack:" line takes the
		// slot after the previous line's, which must not be listed already.
		idx := next
		if label := strings.TrimSpace(t[len("Stack"):i]); label != "" {
			v, err := strconv.Atoi(label)
			if err != nil || v < 0 {
				return nil, 0, &ValidationError{Reason: fmt.Sprintf("invalid stack label %q", label)}
			}
			idx = v
		}
		if seen.Test(idx) {
			return nil, 0, &ValidationError{Reason: fmt.Sprintf("stack %d listed twice", idx)}
		}
		seen.Set(idx)
		next = idx + 1

		tokens := strings.Fields(t[i+1:])
		tiers := make([]int, 0, len(tokens))
		for _, tok := range tokens {
			v, err := strconv.Atoi(tok)
			if err != nil {
				return nil, 0, fmt.Errorf("cpmp: invalid priority token %q: %w", tok, err)
			}
			tiers = append(tiers, v)
		}
		if len(tiers) > stackHeight {
			stackHeight = len(tiers)
		}
		for len(stacks) <= idx {
			stacks = append(stacks, nil)
		}
		stacks[idx] = tiers
	}
	if seen.Count() == 0 {
		return nil, 0, &ValidationError{Reason: "no stacks found in input"}
	}
	return stacks, stackHeight, nil
}

func parseFormatA(lines []string, numStack, stackHeight int) ([][]int, int, error) {
	var tokens []int
	for _, l := range lines {
		for _, tok := range strings.Fields(l) {
			v, err := strconv.Atoi(tok)
			if err != nil {
				return nil, 0, fmt.Errorf("cpmp: invalid integer token %q: %w", tok, err)
			}
			tokens = append(tokens, v)
		}
	}

	var stacks [][]int
	pos := 0
	for (numStack <= 0 || len(stacks) < numStack) && pos < len(tokens) {
		n := tokens[pos]
		pos++
		if n < 0 || pos+n > len(tokens) {
			return nil, 0, &ValidationError{Reason: "malformed stack tier count in input"}
		}
		tiers := append([]int(nil), tokens[pos:pos+n]...)
		pos += n
		stacks = append(stacks, tiers)
		if n > stackHeight {
			stackHeight = n
		}
	}
	if len(stacks) == 0 {
		return nil, 0, &ValidationError{Reason: "no stacks found in input"}
	}
	return stacks, stackHeight, nil
}
