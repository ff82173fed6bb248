package utils

import (
	"strings"
	"testing"
)

func TestSchemaStatementsAreIdempotent(t *testing.T) {
	for _, stmt := range schemaStatements {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Fatalf("statement is not idempotent: %s", stmt)
		}
	}
}
