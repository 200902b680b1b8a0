package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ParseSRT reads a SubRip track. Cue indices in the file are ignored;
// entries are renumbered sequentially. Malformed blocks fail parsing rather
// than being silently dropped.
func ParseSRT(r io.Reader) (*Document, error) {
	doc := &Document{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var block []string
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		entry, err := parseBlock(block)
		if err != nil {
			return err
		}
		entry.Index = len(doc.Entries) + 1
		doc.Entries = append(doc.Entries, entry)
		block = block[:0]
		return nil
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		// Strip UTF-8 BOM from the very first line.
		if len(doc.Entries) == 0 && len(block) == 0 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseSRTFile opens and parses a SubRip file from disk.
func ParseSRTFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subtitle: %w", err)
	}
	defer f.Close()
	doc, err := ParseSRT(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func parseBlock(lines []string) (Entry, error) {
	// Optional numeric index line before the timing line.
	i := 0
	if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil && len(lines) > 1 {
		i = 1
	}
	start, end, err := parseTiming(lines[i])
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Start: start,
		End:   end,
		Text:  strings.Join(lines[i+1:], "\n"),
	}, nil
}

func parseTiming(line string) (float64, float64, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	start, err := parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, fmt.Errorf("cue end %v not after start %v", end, start)
	}
	return start, end, nil
}

// parseTimestamp parses "HH:MM:SS,mmm" (comma or dot separator) to seconds.
func parseTimestamp(s string) (float64, error) {
	s = strings.Replace(s, ".", ",", 1)
	var h, m, sec, ms int
	if _, err := fmt.Sscanf(s, "%d:%d:%d,%d", &h, &m, &sec, &ms); err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	return float64(h)*3600 + float64(m)*60 + float64(sec) + float64(ms)/1000, nil
}

// WriteSRT serializes the document as SubRip, renumbering entries.
func (d *Document) WriteSRT(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i, e := range d.Entries {
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1, formatTimestamp(e.Start), formatTimestamp(e.End), e.Text)
	}
	return bw.Flush()
}

// WriteSRTFile writes the document to path, creating or truncating it.
func (d *Document) WriteSRTFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create subtitle: %w", err)
	}
	if err := d.WriteSRT(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatTimestamp(t float64) string {
	if t < 0 {
		t = 0
	}
	totalMs := int(math.Round(t * 1000))
	h := totalMs / 3600000
	m := totalMs % 3600000 / 60000
	s := totalMs % 60000 / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
