package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"dicedecision/internal/repository"
	"dicedecision/pkg/database"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

const usage = "Usage: migrate [up|drop|status|seed-members <group_id> <member_id>...]"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	command := os.Args[1]
	ctx := context.Background()

	if strings.EqualFold(os.Getenv("STORE_DRIVER"), "sqlite") {
		if err := runSQLite(ctx, command, os.Args[2:]); err != nil {
			log.Fatalf("%s failed: %v", command, err)
		}
		return
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "up":
		if err := execAll(ctx, conn, repository.PostgresSchema); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ Decision tables created successfully")

	case "drop":
		if err := execAll(ctx, conn, repository.PostgresDropSchema); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ Decision tables dropped successfully")

	case "status":
		if err := printStatus(ctx, conn); err != nil {
			log.Fatalf("Failed to read status: %v", err)
		}

	case "seed-members":
		if err := seedMembers(ctx, conn, os.Args[2:]); err != nil {
			log.Fatalf("Failed to seed members: %v", err)
		}
		fmt.Println("✅ Members seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n%s\n", command, usage)
		os.Exit(1)
	}
}

func execAll(ctx context.Context, conn *pgx.Conn, statements []string) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return tx.Commit(ctx)
}

func printStatus(ctx context.Context, conn *pgx.Conn) error {
	rows, err := conn.Query(ctx, `SELECT status, COUNT(*) FROM decisions GROUP BY status ORDER BY status`)
	if err != nil {
		return err
	}
	defer rows.Close()

	fmt.Println("📊 Decisions by status:")
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return err
		}
		fmt.Printf("   %-10s %d\n", status, count)
	}
	return rows.Err()
}

func seedMembers(ctx context.Context, conn *pgx.Conn, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("need a group id and at least one member id")
	}
	groupID := args[0]

	batch := &pgx.Batch{}
	for _, member := range args[1:] {
		batch.Queue(`
			INSERT INTO group_members (group_id, member_id)
			VALUES ($1, $2)
			ON CONFLICT (group_id, member_id) DO NOTHING
		`, groupID, member)
	}
	return conn.SendBatch(ctx, batch).Close()
}

func runSQLite(ctx context.Context, command string, args []string) error {
	path := os.Getenv("SQLITE_PATH")
	if path == "" {
		path = "data/decisions.db"
	}
	db, err := database.NewSQLiteDB(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	switch command {
	case "up":
		if err := repository.ApplySQLiteSchema(ctx, db); err != nil {
			return err
		}
		fmt.Printf("✅ Decision tables created in %s\n", path)
	case "seed-members":
		if len(args) < 2 {
			return fmt.Errorf("need a group id and at least one member id")
		}
		if err := repository.ApplySQLiteSchema(ctx, db); err != nil {
			return err
		}
		members := repository.NewSQLiteMembershipRepository(db)
		for _, member := range args[1:] {
			if err := members.AddMember(ctx, args[0], member); err != nil {
				return err
			}
		}
		fmt.Println("✅ Members seeded successfully")
	default:
		return fmt.Errorf("command %q is not supported for sqlite\n%s", command, usage)
	}
	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
