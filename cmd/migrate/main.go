// The migrate binary applies the SQL migrations in migrations/ with
// goose, e.g. `migrate up` or `migrate down`.
package main

import (
	"database/sql"
	"flag"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with migration files")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		log.Fatal("usage: migrate [-dir migrations] <command> (up, down, status, ...)")
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal(err)
	}
	if err := goose.Run(args[0], db, *dir, args[1:]...); err != nil {
		log.Fatal(err)
	}
}
