// Command main runs the database seeder for Ghostwriter.
package main

import (
	"flag"
	"log"
	"strings"

	"ghostwriter/internal/bootstrap"
	"ghostwriter/internal/config"
	"ghostwriter/internal/database"
	"ghostwriter/internal/seed"
)

func main() {
	// Parse command line flags
	numUsers := flag.Int("users", 5, "Number of users to create")
	clients := flag.Int("clients", 3, "Clients per user")
	posts := flag.Int("posts", 15, "Posts per client")
	snapshots := flag.Int("snapshots", 4, "Analytics snapshots per published post")
	agency := flag.Int("agency", 3, "Group the first N users into an agency (0 disables)")
	days := flag.Int("days", 60, "Spread post history over this many days")
	randSeed := flag.Int64("seed", 0, "Random seed (0 uses the clock)")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fast := flag.Bool("fast", false, "Hash passwords with minimum bcrypt cost")
	dryRun := flag.Bool("dry-run", false, "Build data without writing it")
	preset := flag.String("preset", "", "Apply a named preset ("+strings.Join(seed.PresetNames(), ", ")+")")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	opts := seed.Options{
		NumUsers:         *numUsers,
		ClientsPerUser:   *clients,
		PostsPerClient:   *posts,
		SnapshotsPerPost: *snapshots,
		AgencySize:       *agency,
		ShouldClean:      *shouldClean,
		MaxDays:          *days,
		RandSeed:         *randSeed,
		FastHash:         *fast,
		DryRun:           *dryRun,
	}
	if *preset != "" {
		var err error
		if opts, err = seed.ApplyPreset(*preset, opts); err != nil {
			log.Fatalf("❌ %v", err)
		}
		log.Printf("Applying preset: %s (ignoring size flags)\n", *preset)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, _, err := bootstrap.InitRuntime(cfg, bootstrap.Options{ApplySchema: true, SkipRedis: true})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	sum, err := seed.NewSeeder(db, opts).Seed()
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ All done! users=%d agencies=%d clients=%d posts=%d snapshots=%d",
		sum.Users, sum.Agencies, sum.Clients, sum.Posts, sum.Snapshots)
	log.Printf("📧 All seeded users have the password: %s", seed.DefaultPassword)
}
