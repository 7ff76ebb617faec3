package allowlist

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// CommentPrefix marks allow-list lines that are skipped entirely.
const CommentPrefix = "#"

// ReadFile returns the addresses listed in path, in file order. Lines are
// trimmed; blank lines and comments are skipped. Addresses are not
// validated: anything the firewall accepts as src_ip can be listed,
// including CIDR blocks.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return nil, fmt.Errorf("open allow list: %w", err)
	}
	defer f.Close()

	var addrs []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, CommentPrefix) {
			continue
		}

		addrs = append(addrs, line)
	}

	err = scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read allow list: %w", err)
	}

	return addrs, nil
}
