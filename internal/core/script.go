package core

import (
	"context"
	"fmt"
	"strings"
)

// SplitScript splits a SQL script into statements on semicolons that sit
// outside quotes and comments. Comments are dropped and blank statements
// are skipped. A doubled quote inside a quoted run is an escaped quote.
func SplitScript(script string) []string {
	var (
		out   []string
		b     strings.Builder
		quote rune
	)
	flush := func() {
		if stmt := strings.TrimSpace(b.String()); stmt != "" {
			out = append(out, stmt)
		}
		b.Reset()
	}

	rs := []rune(script)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		next := rune(0)
		if i+1 < len(rs) {
			next = rs[i+1]
		}

		switch {
		case quote != 0:
			b.WriteRune(r)
			if r == quote {
				if next == quote {
					b.WriteRune(next)
					i++
					continue
				}
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
			b.WriteRune(r)
		case r == '-' && next == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
			b.WriteRune('\n')
		case r == '/' && next == '*':
			i += 2
			for i < len(rs) && !(rs[i] == '*' && i+1 < len(rs) && rs[i+1] == '/') {
				i++
			}
			i++
			b.WriteRune(' ')
		case r == ';':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

// ExecScript runs every statement of script in one transaction and returns
// how many statements ran. Nothing is applied when any statement fails.
func ExecScript(ctx context.Context, exec Executor, script string) (int, error) {
	stmts := SplitScript(script)
	if len(stmts) == 0 {
		return 0, nil
	}
	err := exec.WithTx(ctx, func(ctx context.Context, tx Executor) error {
		for i, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("script statement %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stmts), nil
}
