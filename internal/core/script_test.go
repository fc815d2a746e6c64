package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitScript(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{"empty", "  \n\t", nil},
		{"trailing statement without semicolon", "CREATE TABLE a (id INT);\nDROP TABLE b", []string{"CREATE TABLE a (id INT)", "DROP TABLE b"}},
		{"blank statements", ";;SELECT 1;;", []string{"SELECT 1"}},
		{"semicolon inside quotes", "INSERT INTO t VALUES ('a;b', \"c;d\");", []string{"INSERT INTO t VALUES ('a;b', \"c;d\")"}},
		{"escaped quote", "INSERT INTO t VALUES ('it''s; fine');", []string{"INSERT INTO t VALUES ('it''s; fine')"}},
		{"line comment", "-- seed; data\nSELECT 1; -- done;\n", []string{"SELECT 1"}},
		{"block comment", "/* a; b */SELECT 2;/* open", []string{"SELECT 2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitScript(tt.script))
		})
	}
}
