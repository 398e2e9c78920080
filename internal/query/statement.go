package query

import (
	"regexp"
	"strings"
)

// Kind classifies a SQL statement by its effect on data.
type Kind string

const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
	KindDDL   Kind = "ddl"
	KindOther Kind = "other"
)

var leadingKeyword = map[string]Kind{
	"select":   KindRead,
	"with":     KindRead,
	"show":     KindRead,
	"describe": KindRead,
	"desc":     KindRead,
	"explain":  KindRead,
	"values":   KindRead,
	"insert":   KindWrite,
	"update":   KindWrite,
	"delete":   KindWrite,
	"merge":    KindWrite,
	"upsert":   KindWrite,
	"replace":  KindWrite,
	"copy":     KindWrite,
	"create":   KindDDL,
	"alter":    KindDDL,
	"drop":     KindDDL,
	"truncate": KindDDL,
	"rename":   KindDDL,
}

// Statement is the result of classifying a SQL statement.
type Statement struct {
	Normalized string
	Kind       Kind
	// Tables lists the objects a write or DDL statement targets. It is empty
	// for reads.
	Tables []string
}

// Mutates reports whether the statement can change data or structure.
func (s Statement) Mutates() bool {
	return s.Kind == KindWrite || s.Kind == KindDDL
}

var targetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\binsert\s+(?:or\s+\w+\s+)?into\s+([^\s(]+)`),
	regexp.MustCompile(`\bupdate\s+([^\s]+)\s+set\b`),
	regexp.MustCompile(`\bdelete\s+from\s+([^\s]+)`),
	regexp.MustCompile(`\bmerge\s+into\s+([^\s]+)`),
	regexp.MustCompile(`\breplace\s+into\s+([^\s(]+)`),
	regexp.MustCompile(`\b(?:create|alter|drop|truncate)\s+(?:or\s+replace\s+)?(?:temporary\s+|temp\s+)?(?:table|view)\s+(?:if\s+(?:not\s+)?exists\s+)?([^\s(]+)`),
	regexp.MustCompile(`\btruncate\s+([^\s;]+)`),
}

// Classify normalizes sql and determines its kind and, for mutating
// statements, the tables it targets.
func Classify(sql string) Statement {
	norm := Normalize(sql)
	stmt := Statement{Normalized: norm, Kind: KindOther}

	first := norm
	if i := strings.IndexAny(norm, " (;"); i >= 0 {
		first = norm[:i]
	}
	if k, ok := leadingKeyword[first]; ok {
		stmt.Kind = k
	}
	// A CTE may front a write: WITH x AS (...) INSERT INTO ...
	if stmt.Kind == KindRead && first == "with" {
		for _, kw := range []string{" insert ", " update ", " delete ", " merge "} {
			if strings.Contains(norm, kw) {
				stmt.Kind = KindWrite
				break
			}
		}
	}
	if !stmt.Mutates() {
		return stmt
	}

	seen := make(map[string]bool)
	for _, re := range targetPatterns {
		for _, m := range re.FindAllStringSubmatch(norm, -1) {
			name := stripIdentifierQuotes(m[1])
			if name == "" || name == "table" || seen[name] {
				continue
			}
			seen[name] = true
			stmt.Tables = append(stmt.Tables, name)
		}
	}
	return stmt
}

// stripIdentifierQuotes reduces a possibly qualified, possibly quoted object
// name to its bare table name: "public"."orders", [dbo].[orders] and
// `db`.`orders` all become orders.
func stripIdentifierQuotes(name string) string {
	name = strings.TrimRight(name, ";,)")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.Trim(name, "\"`[]")
}
