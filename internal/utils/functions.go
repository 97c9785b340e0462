package utils

import (
	"bufio"
	"bytes"
	"fmt"
	u "net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// NewTarget derives the destination path from the unescaped path component of rawURL.
func NewTarget(rawURL, dir string) (Target, error) {
	parsed, err := u.Parse(rawURL)
	if err != nil {
		return Target{}, fmt.Errorf("invalid URL %s: %w", rawURL, err)
	}
	name := path.Base(parsed.Path) // Path is already unescaped
	if name == "." || name == "/" || name == "" {
		name = DefaultFileName
	}
	return Target{URL: rawURL, DestinationPath: filepath.Join(dir, name)}, nil
}

func baseName(p string) string {
	return filepath.Base(p)
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// ReadURLList accepts either a YAML sequence (plain strings or {link: ...}
// entries) or a plain text file with one URL per line. Blank lines and lines
// starting with # are ignored in text files.
func ReadURLList(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading URL list: %v", err)
	}
	var urls []string
	if ext := strings.ToLower(filepath.Ext(filePath)); ext == ".yaml" || ext == ".yml" {
		urls, err = parseYAMLList(data)
		if err != nil {
			return nil, fmt.Errorf("error parsing YAML file %s: %v", filePath, err)
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			urls = append(urls, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("error scanning URL list %s: %v", filePath, err)
		}
	}
	log.Debug().Str("op", "utils/url-list").Int("count", len(urls)).Msg("URLs loaded")
	return urls, nil
}

func parseYAMLList(data []byte) ([]string, error) {
	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, err
	}
	var urls []string
	for i, node := range nodes {
		switch node.Kind {
		case yaml.ScalarNode:
			urls = append(urls, node.Value)
		case yaml.MappingNode:
			var entry URLListEntry
			if err := node.Decode(&entry); err != nil {
				return nil, fmt.Errorf("entry %d: %v", i+1, err)
			}
			if entry.URL == "" {
				return nil, fmt.Errorf("missing link for entry %d", i+1)
			}
			urls = append(urls, entry.URL)
		default:
			return nil, fmt.Errorf("entry %d is neither a URL nor a mapping", i+1)
		}
	}
	return urls, nil
}

// SplitBatches cuts urls into consecutive batches of at most size entries.
func SplitBatches(urls []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches [][]string
	for start := 0; start < len(urls); start += size {
		end := min(start+size, len(urls))
		batches = append(batches, urls[start:end])
	}
	return batches
}

// ContentRangeStart parses the first byte position of "bytes start-end/total".
func ContentRangeStart(header string) (int64, bool) {
	spec, found := strings.CutPrefix(header, "bytes ")
	if !found {
		return 0, false
	}
	first, _, found := strings.Cut(spec, "-")
	if !found {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}
