package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/go-sql-driver/mysql"
)

// Drops and recreates all application tables. Development use only.
func main() {
	var (
		host     = flag.String("host", envOr("DB_HOST", "localhost"), "database host")
		port     = flag.String("port", envOr("DB_PORT", "3306"), "database port")
		user     = flag.String("user", envOr("DB_USERNAME", "portal_user"), "database user")
		password = flag.String("password", envOr("DB_PASSWORD", "portal_pass"), "database password")
		database = flag.String("database", envOr("DB_DATABASE", "portal_messaging"), "database name")
		yes      = flag.Bool("yes", false, "skip confirmation")
	)
	flag.Parse()

	if !*yes {
		fmt.Printf("This will DROP all tables in %q. Re-run with -yes to confirm.\n", *database)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True", *user, *password, *host, *port, *database)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Drop order respects foreign key references.
	tables := []string{"message", "participant", "conversation", "user"}

	if _, err := db.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		log.Fatalf("disable fk checks: %v", err)
	}
	for _, table := range tables {
		if _, err := db.Exec("DROP TABLE IF EXISTS `" + table + "`"); err != nil {
			log.Fatalf("drop table %s: %v", table, err)
		}
		log.Printf("dropped table %s", table)
	}
	if _, err := db.Exec("SET FOREIGN_KEY_CHECKS = 1"); err != nil {
		log.Fatalf("enable fk checks: %v", err)
	}

	log.Println("done, tables will be recreated on next server start")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
