// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"log"
	"strings"
	"time"

	"ghostwriter/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is set on every seeded account.
const DefaultPassword = "password123"

var (
	industries = []string{
		"Fintech", "SaaS", "Healthcare", "Climate", "Logistics", "Cybersecurity",
		"E-commerce", "Real Estate", "Recruiting", "Developer Tools", "Education",
	}

	tones = []string{"professional", "casual", "inspirational", "educational", "storytelling", "humorous"}

	hooks = []string{
		"Most teams get this wrong.",
		"I changed my mind about this last quarter.",
		"Three years ago I would have disagreed.",
		"Nobody talks about this part of the job.",
		"Here is what actually moved the numbers.",
		"Unpopular opinion:",
	}
)

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by the seeder and tests.
type Factory struct {
	db   *gorm.DB
	opts Options
	fake *gofakeit.Faker
	now  time.Time
	// synthetic ID counter when running in DryRun mode
	nextID uint

	passwordHash string
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
// A zero opts.RandSeed seeds from the clock.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{
		db:     db,
		opts:   opts,
		fake:   gofakeit.New(seed),
		now:    time.Now().UTC(),
		nextID: 1000,
	}
}

func (f *Factory) hashedPassword() (string, error) {
	if f.passwordHash != "" {
		return f.passwordHash, nil
	}
	cost := bcrypt.DefaultCost
	if f.opts.FastHash {
		cost = bcrypt.MinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return "", fmt.Errorf("hash seed password: %w", err)
	}
	f.passwordHash = string(hash)
	return f.passwordHash, nil
}

func (f *Factory) persist(value any, id *uint, label string) error {
	if f.opts.DryRun {
		f.nextID++
		*id = f.nextID
		log.Printf("[dry-run] %s id=%d", label, *id)
		return nil
	}
	return f.db.Create(value).Error
}

// CreateUser constructs and persists a verified `models.User`.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	hash, err := f.hashedPassword()
	if err != nil {
		return nil, err
	}

	first, last := f.fake.FirstName(), f.fake.LastName()
	user := &models.User{
		Name:          first + " " + last,
		Email:         strings.ToLower(fmt.Sprintf("%s.%s%d@example.com", first, last, f.fake.Number(10, 9999))),
		Password:      hash,
		EmailVerified: true,
		Plan:          models.PlanFree,
	}

	for _, override := range overrides {
		override(user)
	}

	if err := f.persist(user, &user.ID, "CreateUser "+user.Email); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateAgency persists an agency owned by owner and attaches the owner and
// members to it.
func (f *Factory) CreateAgency(owner *models.User, members ...*models.User) (*models.Agency, error) {
	agency := &models.Agency{
		Name:    f.fake.Company() + " Studio",
		OwnerID: owner.ID,
	}
	if err := f.persist(agency, &agency.ID, "CreateAgency "+agency.Name); err != nil {
		return nil, err
	}

	owner.AgencyID, owner.AgencyRole, owner.Plan = &agency.ID, models.AgencyRoleOwner, models.PlanAgency
	for _, m := range members {
		m.AgencyID, m.AgencyRole = &agency.ID, models.AgencyRoleMember
	}
	if f.opts.DryRun {
		return agency, nil
	}

	for _, u := range append([]*models.User{owner}, members...) {
		if err := f.db.Model(u).Select("agency_id", "agency_role", "plan").Updates(u).Error; err != nil {
			return nil, err
		}
	}
	return agency, nil
}

// CreateClient constructs and persists a `models.Client` for the user.
func (f *Factory) CreateClient(user *models.User, overrides ...func(*models.Client)) (*models.Client, error) {
	industry := f.fake.RandomString(industries)
	client := &models.Client{
		UserID:         user.ID,
		AgencyID:       user.AgencyID,
		Name:           f.fake.Name(),
		Industry:       industry,
		Tone:           f.fake.RandomString(tones),
		BrandVoice:     fmt.Sprintf("%s %s who writes like they talk.", f.fake.JobTitle(), f.fake.JobDescriptor()),
		TargetAudience: fmt.Sprintf("%s leaders and operators", industry),
		AccountType:    models.AccountTypePersonal,
	}
	client.SetTopics([]string{f.fake.BuzzWord(), f.fake.BuzzWord(), strings.ToLower(industry)})

	if f.fake.Number(1, 5) == 1 {
		client.AccountType = models.AccountTypeOrganization
		client.Name = f.fake.Company()
	}

	for _, override := range overrides {
		override(client)
	}

	if err := f.persist(client, &client.ID, "CreateClient "+client.Name); err != nil {
		return nil, err
	}
	return client, nil
}

// BuildPost constructs a post in the given status without persisting it.
// Published posts get engagement counters; scheduled posts land in the future.
func (f *Factory) BuildPost(client *models.Client, status string, overrides ...func(*models.Post)) *models.Post {
	post := &models.Post{
		ClientID: client.ID,
		UserID:   client.UserID,
		Content:  f.postContent(),
		Status:   status,
	}

	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 60
	}
	past := f.now.Add(-time.Duration(f.fake.Number(1, maxDays*24)) * time.Hour)
	post.CreatedAt = past

	switch status {
	case models.PostStatusPublished:
		published := past.Add(time.Duration(f.fake.Number(1, 12)) * time.Hour)
		if published.After(f.now) {
			published = f.now
		}
		post.PublishedAt = &published
		post.ExternalPostID = fmt.Sprintf("urn:li:share:%d", f.fake.Number(1_000_000_000, 2_000_000_000))
		post.ApplyMetrics(f.engagement(), f.now)
	case models.PostStatusScheduled:
		at := f.now.Add(time.Duration(f.fake.Number(2, 14*24)) * time.Hour)
		post.ScheduledAt = &at
	case models.PostStatusFailed:
		at := past
		post.ScheduledAt = &at
		post.FailureReason = "linkedin account not connected"
	}

	for _, override := range overrides {
		override(post)
	}
	return post
}

func (f *Factory) postContent() string {
	content := f.fake.RandomString(hooks) + "\n\n" + f.fake.Paragraph(2, 3, 12, "\n\n") +
		"\n\n#" + strings.ReplaceAll(strings.ToLower(f.fake.BuzzWord()), " ", "")
	if len(content) > models.MaxPostContentLength {
		content = content[:models.MaxPostContentLength]
	}
	return content
}

func (f *Factory) engagement() models.EngagementCounts {
	impressions := f.fake.Number(200, 25000)
	return models.EngagementCounts{
		Likes:       f.fake.Number(0, impressions/20+1),
		Comments:    f.fake.Number(0, impressions/150+1),
		Shares:      f.fake.Number(0, impressions/300+1),
		Views:       f.fake.Number(impressions/2, impressions),
		Impressions: impressions,
		Clicks:      f.fake.Number(0, impressions/40+1),
	}
}

// CreatePostsBatch persists multiple posts in a single DB call when possible.
func (f *Factory) CreatePostsBatch(posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, p := range posts {
			f.nextID++
			p.ID = f.nextID
		}
		log.Printf("[dry-run] CreatePostsBatch: %d posts (no DB write)", len(posts))
		return nil
	}
	return f.db.CreateInBatches(posts, 100).Error
}

// CreateSnapshots writes a short metric history for each published post,
// growing toward its current counters.
func (f *Factory) CreateSnapshots(posts []*models.Post, perPost int) (int, error) {
	if perPost <= 0 {
		return 0, nil
	}
	var rows []*models.PostAnalytics
	for _, p := range posts {
		if p.Status != models.PostStatusPublished || p.PublishedAt == nil {
			continue
		}
		final := p.Counts()
		span := f.now.Sub(*p.PublishedAt)
		for i := 1; i <= perPost; i++ {
			frac := float64(i) / float64(perPost)
			at := p.PublishedAt.Add(time.Duration(float64(span) * frac))
			step := &models.Post{ID: p.ID}
			step.ApplyMetrics(scaleCounts(final, frac), at)
			rows = append(rows, models.NewSnapshot(step, models.SnapshotSourceSync, at))
		}
	}
	if len(rows) == 0 || f.opts.DryRun {
		return len(rows), nil
	}
	if err := f.db.CreateInBatches(rows, 200).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

func scaleCounts(c models.EngagementCounts, frac float64) models.EngagementCounts {
	scale := func(v int) int { return int(float64(v) * frac) }
	return models.EngagementCounts{
		Likes:       scale(c.Likes),
		Comments:    scale(c.Comments),
		Shares:      scale(c.Shares),
		Views:       scale(c.Views),
		Impressions: scale(c.Impressions),
		Clicks:      scale(c.Clicks),
	}
}
