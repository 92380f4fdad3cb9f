// Package validation holds input checks shared by the HTTP and service layers.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"ghostwriter/internal/models"
)

const (
	MinPasswordLength   = 6
	MaxPasswordLength   = 128
	MaxNameLength       = 100
	MaxIndustryLength   = 100
	MaxLongTextLength   = 2000
	MaxTopics           = 20
	MaxAgencyNameLength = 100
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	numericRegex = regexp.MustCompile(`^[0-9]+$`)
)

// Tones a client can be written in.
var Tones = []string{"professional", "casual", "inspirational", "educational", "storytelling", "humorous"}

// ValidateEmail checks basic email format.
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidatePassword enforces length bounds only.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLength)
	}
	return nil
}

// ValidateName checks a required display name.
func ValidateName(field, name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 {
		return fmt.Errorf("%s is required", field)
	}
	if n > MaxNameLength {
		return fmt.Errorf("%s must not exceed %d characters", field, MaxNameLength)
	}
	return nil
}

// ValidateMaxLength checks an optional free-text field.
func ValidateMaxLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%s must not exceed %d characters", field, max)
	}
	return nil
}

// ValidateTone accepts an empty tone or one of Tones.
func ValidateTone(tone string) error {
	if tone == "" {
		return nil
	}
	for _, t := range Tones {
		if t == tone {
			return nil
		}
	}
	return fmt.Errorf("tone must be one of %s", strings.Join(Tones, ", "))
}

// ValidateAccountType accepts personal or organization.
func ValidateAccountType(accountType string) error {
	switch accountType {
	case models.AccountTypePersonal, models.AccountTypeOrganization:
		return nil
	}
	return fmt.Errorf("account_type must be %q or %q", models.AccountTypePersonal, models.AccountTypeOrganization)
}

// ValidateTopics caps the number of topics.
func ValidateTopics(topics []string) error {
	if len(topics) > MaxTopics {
		return fmt.Errorf("at most %d topics are allowed", MaxTopics)
	}
	return nil
}

// ValidateLinkedInOrgID accepts an empty id or a numeric one.
func ValidateLinkedInOrgID(id string) error {
	if id != "" && !numericRegex.MatchString(id) {
		return fmt.Errorf("linkedin_org_id must be numeric")
	}
	return nil
}

// ValidatePostContent requires content within LinkedIn's commentary limit.
func ValidatePostContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxPostContentLength {
		return fmt.Errorf("content must not exceed %d characters", models.MaxPostContentLength)
	}
	return nil
}
