// Package extract pulls the SQL statement out of a free-text model reply.
package extract

import (
	"regexp"
	"strings"
)

// statementKeywords are the leading keywords that start a statement.
var statementKeywords = []string{"SELECT", "INSERT", "UPDATE", "DELETE", "WITH"}

var sqlFence = regexp.MustCompile("(?is)```sql\\b\\s*(.*?)\\s*```")

// SQL returns the statement contained in reply, or "" when none is found.
//
// A fenced block labelled sql wins regardless of its content. Otherwise the
// reply is scanned line by line: capture starts at the first line beginning
// with a statement keyword and stops after the first captured line holding a
// ';'. Without a terminator the capture runs to the end of the reply.
func SQL(reply string) string {
	if m := sqlFence.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return scanStatement(reply)
}

type scanState int

const (
	searching scanState = iota
	capturing
	stopped
)

func scanStatement(reply string) string {
	var captured []string
	state := searching
	for _, line := range strings.Split(reply, "\n") {
		if state == searching && HasStatementPrefix(line) {
			state = capturing
		}
		if state != capturing {
			continue
		}
		captured = append(captured, line)
		if strings.Contains(line, ";") {
			state = stopped
			break
		}
	}
	return strings.TrimSpace(strings.Join(captured, "\n"))
}

// HasStatementPrefix reports whether s, trimmed and upper-cased, starts with
// SELECT, INSERT, UPDATE, DELETE or WITH.
func HasStatementPrefix(s string) bool {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for _, kw := range statementKeywords {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

// Explanation is the reply with the extracted statement cut out.
func Explanation(reply, sql string) string {
	if sql == "" {
		return strings.TrimSpace(reply)
	}
	return strings.TrimSpace(strings.ReplaceAll(reply, sql, ""))
}
