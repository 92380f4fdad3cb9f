package seed

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"ghostwriter/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers         int
	ClientsPerUser   int
	PostsPerClient   int
	SnapshotsPerPost int
	// AgencySize groups the first N users into one agency; 0 or 1 disables it.
	AgencySize  int
	ShouldClean bool

	MaxDays  int
	RandSeed int64
	FastHash bool
	DryRun   bool
}

// Presets are named option sets for common scenarios.
var Presets = map[string]Options{
	"demo": {
		NumUsers: 3, ClientsPerUser: 3, PostsPerClient: 12, SnapshotsPerPost: 4, AgencySize: 2,
	},
	"agency": {
		NumUsers: 8, ClientsPerUser: 5, PostsPerClient: 20, SnapshotsPerPost: 6, AgencySize: 6,
	},
	"load": {
		NumUsers: 50, ClientsPerUser: 8, PostsPerClient: 40, SnapshotsPerPost: 3, AgencySize: 10, FastHash: true,
	},
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary counts the rows a run created.
type Summary struct {
	Users     int
	Agencies  int
	Clients   int
	Posts     int
	Snapshots int
}

// status weights for generated posts, out of 10
var statusMix = []struct {
	status string
	weight int
}{
	{models.PostStatusPublished, 6},
	{models.PostStatusScheduled, 2},
	{models.PostStatusDraft, 1},
	{models.PostStatusFailed, 1},
}

// Seeder populates a database with demo data.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// NewSeeder creates a seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	return &Seeder{db: db, opts: opts, factory: NewFactory(db, opts)}
}

// ApplyPreset returns the named preset with the caller's runtime flags kept.
func ApplyPreset(name string, base Options) (Options, error) {
	preset, ok := Presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return base, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
	}
	preset.ShouldClean = base.ShouldClean
	preset.RandSeed = base.RandSeed
	preset.DryRun = base.DryRun
	preset.FastHash = preset.FastHash || base.FastHash
	preset.MaxDays = base.MaxDays
	return preset, nil
}

// Seed populates the database with demo data
func (s *Seeder) Seed() (*Summary, error) {
	log.Printf("🌱 Seeding %d users x %d clients x %d posts...", s.opts.NumUsers, s.opts.ClientsPerUser, s.opts.PostsPerClient)

	if s.opts.ShouldClean && !s.opts.DryRun {
		if err := s.ClearAll(); err != nil {
			return nil, fmt.Errorf("failed to clear data: %w", err)
		}
	}

	sum := &Summary{}
	users := make([]*models.User, 0, s.opts.NumUsers)
	for i := 0; i < s.opts.NumUsers; i++ {
		user, err := s.factory.CreateUser()
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		users = append(users, user)
	}
	sum.Users = len(users)
	log.Printf("✓ %d users created", sum.Users)

	if size := min(s.opts.AgencySize, len(users)); size > 1 {
		if _, err := s.factory.CreateAgency(users[0], users[1:size]...); err != nil {
			return nil, fmt.Errorf("failed to create agency: %w", err)
		}
		sum.Agencies = 1
		log.Printf("✓ agency created with %d members", size)
	}

	var published []*models.Post
	for _, user := range users {
		for c := 0; c < s.opts.ClientsPerUser; c++ {
			client, err := s.factory.CreateClient(user)
			if err != nil {
				return nil, fmt.Errorf("failed to create client: %w", err)
			}
			sum.Clients++

			posts := make([]*models.Post, 0, s.opts.PostsPerClient)
			for p := 0; p < s.opts.PostsPerClient; p++ {
				posts = append(posts, s.factory.BuildPost(client, pickStatus(p)))
			}
			if err := s.factory.CreatePostsBatch(posts); err != nil {
				return nil, fmt.Errorf("failed to create posts: %w", err)
			}
			sum.Posts += len(posts)
			for _, p := range posts {
				if p.Status == models.PostStatusPublished {
					published = append(published, p)
				}
			}
		}
	}
	log.Printf("✓ %d clients and %d posts created", sum.Clients, sum.Posts)

	n, err := s.factory.CreateSnapshots(published, s.opts.SnapshotsPerPost)
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics snapshots: %w", err)
	}
	sum.Snapshots = n
	log.Printf("✓ %d analytics snapshots created", n)

	log.Println("🎉 Database seeding completed successfully!")
	return sum, nil
}

// pickStatus spreads statuses deterministically over the post index.
func pickStatus(i int) string {
	slot := i % 10
	for _, m := range statusMix {
		if slot < m.weight {
			return m.status
		}
		slot -= m.weight
	}
	return models.PostStatusDraft
}

// clearOrder lists tables children first.
var clearOrder = []any{
	&models.PostAnalytics{},
	&models.ClientAnalytics{},
	&models.Post{},
	&models.LinkedInToken{},
	&models.Client{},
	&models.Activity{},
	&models.WebhookEvent{},
	&models.AgencyInvite{},
	&models.User{},
	&models.Agency{},
}

// ClearAll removes every seeded row.
func (s *Seeder) ClearAll() error {
	log.Println("🗑️  Clearing existing data...")

	if s.db.Dialector.Name() == "postgres" {
		return s.db.Exec(`TRUNCATE TABLE post_analytics, client_analytics, posts, linkedin_tokens,
			clients, activities, webhook_events, agency_invites, users, agencies RESTART IDENTITY CASCADE`).Error
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range clearOrder {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(model).Error; err != nil {
				return fmt.Errorf("clear %T: %w", model, err)
			}
		}
		return nil
	})
}
