package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
)

// blockList rejects requests from listed users (the "u" query parameter) or
// source IPs.  IP entries may use "*" for any dotted component.
type blockList struct {
	users map[string]string // user id key, note value
	ips   map[string]string // ip match key, note value
}

func addBlock(blockMap map[string]string, data string) error {
	parts := strings.Split(data, ",")
	switch len(parts) {
	case 1:
		blockMap[parts[0]] = ""
	case 2:
		blockMap[parts[0]] = parts[1]
	default:
		return fmt.Errorf("bad blocklist line")
	}
	return nil
}

// loadBlockListFile reads lines of the form "u=user[,note]" or "ip=addr[,note]".
// It returns nil if no file is given or the file lists nothing.
func loadBlockListFile(filename string) (*blockList, error) {
	if len(filename) == 0 {
		return nil, nil
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bl := &blockList{
		users: make(map[string]string),
		ips:   make(map[string]string),
	}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
		case strings.HasPrefix(line, "u="):
			if err := addBlock(bl.users, line[2:]); err != nil {
				return nil, fmt.Errorf("bad user blocklist line: %s", line)
			}
		case strings.HasPrefix(line, "ip="):
			if err := addBlock(bl.ips, line[3:]); err != nil {
				return nil, fmt.Errorf("bad ip blocklist line: %s", line)
			}
		default:
			return nil, fmt.Errorf("bad line in blocklist file (%s): %s", filename, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(bl.users) == 0 && len(bl.ips) == 0 {
		return nil, nil
	}
	return bl, nil
}

// handler is middleware returning 429 for blocked requests.
func (bl *blockList) handler(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if bl.blockedRequest(w, r) {
			return
		}
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func (bl *blockList) blockedRequest(w http.ResponseWriter, r *http.Request) bool {
	if len(bl.users) > 0 {
		user := r.URL.Query().Get("u")
		note, found := bl.users[user]
		if found {
			http.Error(w, fmt.Sprintf("User %q is blocked: %s", user, note), http.StatusTooManyRequests)
			return true
		}
	}
	if len(bl.ips) > 0 {
		ip, err := requestSourceIP(r)
		if err != nil {
			return false
		}
		note, found := bl.blockedIP(ip)
		if found {
			http.Error(w, fmt.Sprintf("IP %q is blocked: %s", ip, note), http.StatusTooManyRequests)
			return true
		}
	}
	return false
}

func (bl *blockList) blockedIP(ip string) (string, bool) {
	targetParts := strings.Split(ip, ".")
	for blockIP, note := range bl.ips {
		parts := strings.Split(blockIP, ".")
		if len(parts) != len(targetParts) {
			continue
		}
		match := true
		for i := range parts {
			if parts[i] != "*" && parts[i] != targetParts[i] {
				match = false
				break
			}
		}
		if match {
			return note, true
		}
	}
	return "", false
}

// requestSourceIP checks the Forwarded and X-Forwarded-For headers before the
// connection's remote address.
func requestSourceIP(r *http.Request) (string, error) {
	if forwarded := r.Header.Get("Forwarded"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		for _, part := range strings.Split(first, ";") {
			part = strings.ToLower(strings.TrimSpace(part))
			if strings.HasPrefix(part, "for=") {
				return strings.Trim(part[4:], `"`), nil
			}
		}
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0]), nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", err
	}
	return host, nil
}
