package sql

import (
	"testing"

	"github.com/syssam/rom/dialect"
)

func BenchmarkInsertBuilder(b *testing.B) {
	for _, d := range []string{dialect.SQLite, dialect.MySQL, dialect.Postgres} {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				Dialect(d).Insert("users").
					Set("id", 1).
					Set("name", "Jane").
					Set("email", "jane@example.com").
					Returning().
					Query()
			}
		})
	}
}

func BenchmarkSelector_Join(b *testing.B) {
	for _, d := range []string{dialect.SQLite, dialect.MySQL, dialect.Postgres} {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				Dialect(d).Select("t0.*").
					From("tasks").As("t0").
					AppendSelectAs("t1.id", "user_id").
					AppendSelectAs("t1.name", "user_name").
					Join("users", "t1", ColumnsEQ("t0.user_id", "t1.id")).
					Where(In("t0.id", 1, 2, 3), EQ("t1.name", "Jane")).
					OrderBy("t0.id").
					Query()
			}
		})
	}
}
