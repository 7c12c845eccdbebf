// Package platforms reads source urls out of a markdown-style platforms list.
package platforms

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var linkPattern = regexp.MustCompile(`\((https?://[^)\s]+)\)`)

// Parse returns every "(http...)" target in r, in order. Blank lines and
// lines starting with '#' are ignored.
func Parse(r io.Reader) ([]string, error) {
	urls := make([]string, 0)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, m := range linkPattern.FindAllStringSubmatch(line, -1) {
			urls = append(urls, m[1])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read platforms: %w", err)
	}
	return urls, nil
}

func ParseFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open platforms file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
